package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spendbook/internal/core"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "spendbook.db")
	repo, err := NewSQLiteRepository(dbPath, WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, dbPath
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	_, dbPath := newTestRepo(t)

	require.NoError(t, EnsureSchema(dbPath))
	require.NoError(t, EnsureSchema(dbPath))

	version, dirty, err := SchemaVersion(dbPath)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestReopenKeepsData(t *testing.T) {
	repo, dbPath := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepository(dbPath, WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	defer reopened.Close()

	id, ok, err := reopened.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, id)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Register(ctx, "alice", "pw2")
	require.NoError(t, err)
	assert.False(t, ok, "second registration with the same username must be rejected")

	// The rejected registration must not have replaced the credential.
	_, ok, err = repo.Authenticate(ctx, "alice", "pw2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = repo.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthenticate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.Register(ctx, "bob", "secret")
	require.NoError(t, err)
	require.True(t, ok)

	id, ok, err := repo.Authenticate(ctx, "bob", "secret")
	require.NoError(t, err)
	require.True(t, ok)

	account, err := repo.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", account.Username)

	tests := []struct {
		name, user, pass string
	}{
		{"wrong credential", "bob", "Secret"},
		{"unknown user", "carol", "secret"},
		{"empty credential", "bob", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok, err := repo.Authenticate(ctx, tt.user, tt.pass)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Zero(t, id)
		})
	}
}

func TestOverlongCredential(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	long := strings.Repeat("x", core.MaxCredentialBytes+1)

	ok, err := repo.Register(ctx, "erin", long)
	assert.ErrorIs(t, err, core.ErrCredentialTooLong)
	assert.False(t, ok)

	_, err = repo.GetAccount(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound, "nothing must be written")

	ok, err = repo.Register(ctx, "erin", long[:core.MaxCredentialBytes])
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repo.Authenticate(ctx, "erin", long)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialIsNotStoredInPlaintext(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Register(ctx, "dave", "hunter2")
	require.NoError(t, err)

	row, err := repo.queries.GetAccountByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", row.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte("hunter2")))
}

func TestGetAccountNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.GetAccount(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddAndListEntriesPreservesOrder(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dbPath := filepath.Join(t.TempDir(), "spendbook.db")
	repo, err := NewSQLiteRepository(dbPath, WithHashCost(bcrypt.MinCost), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	_, err = repo.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	aliceID, _, err := repo.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = repo.Register(ctx, "bob", "pw")
	require.NoError(t, err)
	bobID, _, err := repo.Authenticate(ctx, "bob", "pw")
	require.NoError(t, err)

	want := []core.Entry{
		{AccountID: aliceID, Date: core.NewDate(2024, 2, 1), Category: core.Travel, Description: "train", Amount: core.Money{Cents: 2000}},
		{AccountID: aliceID, Date: core.NewDate(2024, 1, 5), Category: core.Food, Description: "lunch", Amount: core.Money{Cents: 1000}},
		{AccountID: aliceID, Date: core.NewDate(2024, 1, 5), Category: core.Food, Description: "lunch", Amount: core.Money{Cents: 1000}},
		{AccountID: aliceID, Date: core.NewDate(2024, 1, 9), Category: core.Others, Description: "", Amount: core.Money{Cents: 0}},
	}
	for _, e := range want {
		id, err := repo.AddEntry(ctx, e)
		require.NoError(t, err)
		assert.Positive(t, id)
	}
	_, err = repo.AddEntry(ctx, core.Entry{AccountID: bobID, Date: core.NewDate(2024, 1, 1), Category: core.Bills, Amount: core.Money{Cents: 500}})
	require.NoError(t, err)

	got, err := repo.ListEntries(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Date.String(), got[i].Date.String(), "entry %d date", i)
		assert.Equal(t, want[i].Category, got[i].Category, "entry %d category", i)
		assert.Equal(t, want[i].Description, got[i].Description, "entry %d description", i)
		assert.Equal(t, want[i].Amount, got[i].Amount, "entry %d amount", i)
		assert.Equal(t, aliceID, got[i].AccountID)
		assert.Equal(t, fixed, got[i].CreatedAt)
		if i > 0 {
			assert.Greater(t, got[i].ID, got[i-1].ID)
		}
	}

	bobs, err := repo.ListEntries(ctx, bobID)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestListEntriesEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)
	entries, err := repo.ListEntries(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestAddEntryRequiresExistingAccount(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.AddEntry(context.Background(), core.Entry{
		AccountID: 999,
		Date:      core.NewDate(2024, 1, 1),
		Category:  core.Food,
		Amount:    core.Money{Cents: 100},
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn("a.db"))
	assert.Equal(t, "a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn("a.db?mode=rwc"))
}
