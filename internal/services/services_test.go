package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spendbook/internal/amqp"
	"spendbook/internal/auth"
	"spendbook/internal/core"
	"spendbook/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.EntryRecordedMessage
	err  error
}

func (p *recordingPublisher) PublishEntryRecorded(_ context.Context, msg *amqp.EntryRecordedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func newServices(t *testing.T, pub EntryPublisher) (*AccountService, *LedgerService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "spendbook.db"), storage.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	tokens := auth.NewTokenManager("test-secret-0123456789", "spendbook", time.Hour)
	return NewAccountService(repo, tokens), NewLedgerService(repo, pub)
}

func TestEndToEnd(t *testing.T) {
	pub := &recordingPublisher{}
	accounts, ledger := newServices(t, pub)
	ctx := context.Background()

	require.NoError(t, accounts.Register(ctx, "alice", "pw1"))
	assert.ErrorIs(t, accounts.Register(ctx, "alice", "pw2"), ErrDuplicateUsername)

	session, err := accounts.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	resolved, err := accounts.Resolve(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.AccountID, resolved.AccountID)

	inputs := []NewEntry{
		{Date: core.NewDate(2024, 1, 5), Category: core.Food, Description: "lunch", Amount: core.Money{Cents: 1000}},
		{Date: core.NewDate(2024, 1, 20), Category: core.Food, Description: "dinner", Amount: core.Money{Cents: 500}},
		{Date: core.NewDate(2024, 2, 1), Category: core.Travel, Description: "bus", Amount: core.Money{Cents: 300}},
	}
	for _, in := range inputs {
		e, err := ledger.RecordEntry(ctx, session.AccountID, in)
		require.NoError(t, err)
		assert.Positive(t, e.ID)
	}

	entries, err := ledger.Entries(ctx, session.AccountID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, in := range inputs {
		assert.Equal(t, in.Description, entries[i].Description)
	}

	ov, err := ledger.Overview(ctx, session.AccountID)
	require.NoError(t, err)
	assert.Equal(t, map[core.Category]core.Money{
		core.Food:   {Cents: 1500},
		core.Travel: {Cents: 300},
	}, ov.ByCategory)
	require.Len(t, ov.Monthly, 2)
	assert.Equal(t, "2024-01", ov.Monthly[0].Month.String())
	assert.Equal(t, int64(1500), ov.Monthly[0].Amount.Cents)

	assert.Len(t, pub.msgs, 3)
	assert.Equal(t, entries[0].ID, pub.msgs[0].EntryID)
}

func TestRegisterValidation(t *testing.T) {
	accounts, _ := newServices(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, accounts.Register(ctx, "  ", "pw"), core.ErrEmptyUsername)
	assert.ErrorIs(t, accounts.Register(ctx, "alice", ""), core.ErrEmptyCredential)
	assert.ErrorIs(t, accounts.Register(ctx, "alice", strings.Repeat("x", 73)), core.ErrCredentialTooLong)

	require.NoError(t, accounts.Register(ctx, " alice ", "pw"))
	assert.ErrorIs(t, accounts.Register(ctx, "alice", "other"), ErrDuplicateUsername)
}

func TestLoginFailures(t *testing.T) {
	accounts, _ := newServices(t, nil)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, "alice", "pw1"))

	for _, tc := range []struct{ user, pass string }{
		{"alice", "pw2"},
		{"bob", "pw1"},
		{"", ""},
	} {
		_, err := accounts.Login(ctx, tc.user, tc.pass)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "user=%q", tc.user)
	}
}

func TestResolveRejectsUnknownAccount(t *testing.T) {
	accounts, _ := newServices(t, nil)
	forged, err := accounts.tokens.Issue(999, "ghost")
	require.NoError(t, err)

	_, err = accounts.Resolve(context.Background(), forged.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = accounts.Resolve(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

type brokenAccountStore struct {
	AccountStore
	err error
}

func (b brokenAccountStore) GetAccount(context.Context, int64) (core.Account, error) {
	return core.Account{}, b.err
}

func TestResolveStorageFailure(t *testing.T) {
	accounts, _ := newServices(t, nil)
	outage := errors.New("disk I/O error")
	accounts.store = brokenAccountStore{AccountStore: accounts.store, err: outage}

	session, err := accounts.tokens.Issue(1, "alice")
	require.NoError(t, err)

	_, err = accounts.Resolve(context.Background(), session.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRecordEntryValidation(t *testing.T) {
	pub := &recordingPublisher{}
	accounts, ledger := newServices(t, pub)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, "alice", "pw"))
	session, err := accounts.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   NewEntry
		want error
	}{
		{"negative amount", NewEntry{Date: core.NewDate(2024, 1, 1), Category: core.Food, Amount: core.Money{Cents: -1}}, core.ErrNegativeAmount},
		{"unknown category", NewEntry{Date: core.NewDate(2024, 1, 1), Category: "Rent"}, core.ErrUnknownCategory},
		{"missing date", NewEntry{Category: core.Food}, core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.RecordEntry(ctx, session.AccountID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = ledger.RecordEntry(ctx, 0, NewEntry{Date: core.NewDate(2024, 1, 1), Category: core.Food})
	assert.ErrorIs(t, err, core.ErrInvalidAccount)

	_, err = ledger.RecordEntry(ctx, 12345, NewEntry{Date: core.NewDate(2024, 1, 1), Category: core.Food})
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	entries, err := ledger.Entries(ctx, session.AccountID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, pub.msgs, "rejected entries must not be announced")
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	accounts, ledger := newServices(t, pub)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, "alice", "pw"))
	session, err := accounts.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	e, err := ledger.RecordEntry(ctx, session.AccountID, NewEntry{
		Date: core.NewDate(2024, 3, 3), Category: core.Bills, Description: "  power  ", Amount: core.Money{Cents: 4200},
	})
	require.NoError(t, err)
	assert.Equal(t, "power", e.Description)
	assert.Len(t, pub.msgs, 1)
}

func TestNilPublisher(t *testing.T) {
	accounts, ledger := newServices(t, nil)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, "alice", "pw"))
	session, err := accounts.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = ledger.RecordEntry(ctx, session.AccountID, NewEntry{Date: core.NewDate(2024, 3, 3), Category: core.Food})
	assert.NoError(t, err)
}
