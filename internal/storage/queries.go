package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the hand-written statements for the accounts and entries relations.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    int64
}

type Entry struct {
	ID          int64
	AccountID   int64
	Date        string
	Category    string
	Description string
	AmountCents int64
	CreatedAt   int64
}

const createAccount = `
INSERT INTO accounts (username, password_hash, created_at)
VALUES (?, ?, ?)
`

type CreateAccountParams struct {
	Username     string
	PasswordHash string
	CreatedAt    int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createAccount, arg.Username, arg.PasswordHash, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getAccountByUsername = `
SELECT id, username, password_hash, created_at
FROM accounts
WHERE username = ?
`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByUsername, username)
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

const getAccount = `
SELECT id, username, password_hash, created_at
FROM accounts
WHERE id = ?
`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

const createEntry = `
INSERT INTO entries (account_id, date, category, description, amount_cents, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

type CreateEntryParams struct {
	AccountID   int64
	Date        string
	Category    string
	Description string
	AmountCents int64
	CreatedAt   int64
}

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createEntry,
		arg.AccountID,
		arg.Date,
		arg.Category,
		arg.Description,
		arg.AmountCents,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listEntriesByAccount = `
SELECT id, account_id, date, category, description, amount_cents, created_at
FROM entries
WHERE account_id = ?
ORDER BY id ASC
`

func (q *Queries) ListEntriesByAccount(ctx context.Context, accountID int64) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listEntriesByAccount, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Entry{}
	for rows.Next() {
		var i Entry
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.Date,
			&i.Category,
			&i.Description,
			&i.AmountCents,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
