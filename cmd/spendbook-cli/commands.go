package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"spendbook/internal/auth"
	"spendbook/internal/config"
	"spendbook/internal/core"
	"spendbook/internal/services"
	"spendbook/internal/storage"
	"spendbook/internal/summary"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: spendbook-cli <command> [flags]

commands:
  register    create an account
  login       authenticate and print a session token
  add         record an entry
  list        list entries
  summary     totals by category, distribution and monthly trend
  categories  list the available categories
`

type app struct {
	accounts *services.AccountService
	ledger   *services.LedgerService
	stdout   io.Writer
	getenv   func(string) string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	if cmd == "categories" {
		for _, c := range core.Categories() {
			fmt.Fprintln(stdout, c)
		}
		return exitOK
	}

	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return exitError
	}
	defer repo.Close()

	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL)
	a := &app{
		accounts: services.NewAccountService(repo, tokens),
		ledger:   services.NewLedgerService(repo, nil),
		stdout:   stdout,
		getenv:   getenv,
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := handler(ctx, a, fs, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return exitError
	}
	return exitOK
}

type commandFunc func(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error

var commands = map[string]commandFunc{
	"register": cmdRegister,
	"login":    cmdLogin,
	"add":      cmdAdd,
	"list":     cmdList,
	"summary":  cmdSummary,
}

func credentialFlags(fs *flag.FlagSet) (*string, *string) {
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	return username, password
}

func cmdRegister(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	username, password := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.accounts.Register(ctx, *username, *password); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "account %q created\n", strings.TrimSpace(*username))
	return nil
}

func cmdLogin(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	username, password := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.accounts.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, session.Token)
	return nil
}

// session resolves the token flag, falling back to SPENDBOOK_TOKEN.
func (a *app) session(ctx context.Context, token string) (auth.Session, error) {
	if token == "" {
		token = a.getenv("SPENDBOOK_TOKEN")
	}
	if token == "" {
		return auth.Session{}, errors.New("not logged in: pass -token or set SPENDBOOK_TOKEN")
	}
	return a.accounts.Resolve(ctx, token)
}

func cmdAdd(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "session token")
	date := fs.String("date", "", "entry date (YYYY-MM-DD)")
	category := fs.String("category", "", "one of: "+categoryList())
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	desc := fs.String("desc", "", "description")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.session(ctx, *token)
	if err != nil {
		return err
	}

	d, err := core.ParseDate(*date)
	if err != nil {
		return err
	}
	c, err := core.ParseCategory(*category)
	if err != nil {
		return err
	}
	m, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}

	e, err := a.ledger.RecordEntry(ctx, session.AccountID, services.NewEntry{
		Date:        d,
		Category:    c,
		Description: *desc,
		Amount:      m,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "entry #%d recorded: %s %s %s\n", e.ID, e.Date, e.Category, e.Amount)
	return nil
}

func cmdList(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "session token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.session(ctx, *token)
	if err != nil {
		return err
	}
	entries, err := a.ledger.Entries(ctx, session.AccountID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no entries")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION\t")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", e.ID, e.Date, e.Category, e.Amount, e.Description)
	}
	return tw.Flush()
}

func cmdSummary(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "session token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.session(ctx, *token)
	if err != nil {
		return err
	}
	ov, err := a.ledger.Overview(ctx, session.AccountID)
	if err != nil {
		return err
	}
	return printOverview(a.stdout, ov)
}

func printOverview(w io.Writer, ov summary.Overview) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Entries:\t%d\n", ov.Count)
	fmt.Fprintf(tw, "Total:\t%s\n", ov.Total)

	fmt.Fprintln(tw, "\nCATEGORY\tAMOUNT\tSHARE")
	for _, s := range ov.Distribution {
		fmt.Fprintf(tw, "%s\t%s\t%s%%\n", s.Category, s.Amount, s.Percent.StringFixed(2))
	}

	fmt.Fprintln(tw, "\nMONTH\tAMOUNT")
	for _, m := range ov.Monthly {
		fmt.Fprintf(tw, "%s\t%s\n", m.Month, m.Amount)
	}
	return tw.Flush()
}

func categoryList() string {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
