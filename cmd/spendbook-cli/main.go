// Command spendbook-cli drives the ledger directly against the SQLite file.
//
//	spendbook-cli register -u alice -p secret
//	spendbook-cli login -u alice -p secret
//	spendbook-cli add -token T -date 2024-01-05 -category Food -amount 12.50 -desc lunch
//	spendbook-cli list -token T
//	spendbook-cli summary -token T
//	spendbook-cli categories
//
// The token may also be supplied through SPENDBOOK_TOKEN.
package main

import (
	"context"
	"os"

	"spendbook/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	// Keep command output clean; only warnings and above are logged.
	cli.SetupLogger("warn")

	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}
