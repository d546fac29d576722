package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spendbook/internal/auth"
	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/storage"
)

var (
	// ErrDuplicateUsername is returned by Register when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidCredentials is returned by Login on any username/credential mismatch.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AccountStore is the account side of the repository.
type AccountStore interface {
	Register(ctx context.Context, username, credential string) (bool, error)
	Authenticate(ctx context.Context, username, credential string) (int64, bool, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
}

// AccountService registers accounts and turns successful logins into sessions.
type AccountService struct {
	store  AccountStore
	tokens *auth.TokenManager
}

func NewAccountService(store AccountStore, tokens *auth.TokenManager) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
	}
}

// Register validates the pair and creates the account.
func (s *AccountService) Register(ctx context.Context, username, credential string) error {
	username = strings.TrimSpace(username)
	if err := core.ValidateCredentials(username, credential); err != nil {
		return err
	}

	ok, err := s.store.Register(ctx, username, credential)
	if err != nil {
		return fmt.Errorf("register account: %w", err)
	}
	if !ok {
		return ErrDuplicateUsername
	}
	return nil
}

// Login authenticates and issues a session token.
func (s *AccountService) Login(ctx context.Context, username, credential string) (auth.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || credential == "" {
		return auth.Session{}, ErrInvalidCredentials
	}

	id, ok, err := s.store.Authenticate(ctx, username, credential)
	if err != nil {
		return auth.Session{}, fmt.Errorf("authenticate: %w", err)
	}
	if !ok {
		applog.FromContext(ctx).WithComponent(applog.ComponentAccount).
			WarnContext(ctx, "Login rejected", applog.FieldUsername, username)
		return auth.Session{}, ErrInvalidCredentials
	}

	session, err := s.tokens.Issue(id, username)
	if err != nil {
		return auth.Session{}, fmt.Errorf("issue session: %w", err)
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentAccount).
		InfoContext(ctx, "Login succeeded", applog.FieldAccountID, id)
	return session, nil
}

// Resolve verifies a session token and returns the account it belongs to.
// Tokens for accounts that no longer exist are rejected.
func (s *AccountService) Resolve(ctx context.Context, token string) (auth.Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return auth.Session{}, err
	}
	_, err = s.store.GetAccount(ctx, session.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		return auth.Session{}, fmt.Errorf("%w: account %d no longer exists", auth.ErrInvalidToken, session.AccountID)
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("resolve session: %w", err)
	}
	return session, nil
}
