package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"spendbook/internal/core"
)

// SQLiteRepository is the account and ledger store backed by a single SQLite file.
type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	hashCost int
	now      func() time.Time
}

// Option customizes a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithHashCost sets the bcrypt cost used for new credentials.
func WithHashCost(cost int) Option {
	return func(r *SQLiteRepository) {
		r.hashCost = cost
	}
}

// WithClock overrides the clock used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer: one connection serializes every statement.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := EnsureSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	repo := &SQLiteRepository{
		db:       db,
		queries:  New(db),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the underlying file is still reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Register creates an account. It returns false, without writing anything,
// when the username is already taken.
func (r *SQLiteRepository) Register(ctx context.Context, username, credential string) (bool, error) {
	if len(credential) > core.MaxCredentialBytes {
		return false, core.ErrCredentialTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), r.hashCost)
	if err != nil {
		return false, fmt.Errorf("hash credential: %w", err)
	}

	id, err := r.queries.CreateAccount(ctx, CreateAccountParams{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    r.now().UTC().Unix(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			slog.InfoContext(ctx, "Registration rejected, username taken", "username", username)
			return false, nil
		}
		return false, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account registered", "id", id, "username", username)
	return true, nil
}

// Authenticate returns the account id when username and credential match.
// A mismatch is reported through ok, not through err.
func (r *SQLiteRepository) Authenticate(ctx context.Context, username, credential string) (int64, bool, error) {
	if len(credential) > core.MaxCredentialBytes {
		return 0, false, nil
	}
	account, err := r.queries.GetAccountByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get account by username: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(credential)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("compare credential: %w", err)
	}

	return account.ID, true, nil
}

// GetAccount loads an account by id.
func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	account, err := r.queries.GetAccount(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return core.Account{
		ID:        account.ID,
		Username:  account.Username,
		CreatedAt: time.Unix(account.CreatedAt, 0).UTC(),
	}, nil
}

// AddEntry appends one entry owned by e.AccountID and returns its id.
// A zero e.CreatedAt is stamped with the repository clock.
func (r *SQLiteRepository) AddEntry(ctx context.Context, e core.Entry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	id, err := r.queries.CreateEntry(ctx, CreateEntryParams{
		AccountID:   e.AccountID,
		Date:        e.Date.String(),
		Category:    string(e.Category),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		CreatedAt:   createdAt.UTC().Unix(),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("create entry for account %d: %w", e.AccountID, ErrAccountNotFound)
		}
		return 0, fmt.Errorf("create entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved to SQLite",
		"id", id,
		"account_id", e.AccountID,
		"category", e.Category,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.String())

	return id, nil
}

// ListEntries returns every entry of the account in insertion order.
func (r *SQLiteRepository) ListEntries(ctx context.Context, accountID int64) ([]core.Entry, error) {
	rows, err := r.queries.ListEntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		date, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", row.ID, err)
		}
		entries = append(entries, core.Entry{
			ID:          row.ID,
			AccountID:   row.AccountID,
			Date:        date,
			Category:    core.Category(row.Category),
			Description: row.Description,
			Amount:      core.Money{Cents: row.AmountCents},
			CreatedAt:   time.Unix(row.CreatedAt, 0).UTC(),
		})
	}

	return entries, nil
}
