package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendbook/internal/amqp"
	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/summary"
)

// LedgerStore is the ledger side of the repository.
type LedgerStore interface {
	AddEntry(ctx context.Context, e core.Entry) (int64, error)
	ListEntries(ctx context.Context, accountID int64) ([]core.Entry, error)
}

// EntryPublisher announces recorded entries to other processes.
type EntryPublisher interface {
	PublishEntryRecorded(ctx context.Context, msg *amqp.EntryRecordedMessage) error
}

// LedgerService validates and records entries and computes summaries.
type LedgerService struct {
	storage   LedgerStore
	publisher EntryPublisher
}

// NewLedgerService wires the store and an optional publisher (nil disables events).
func NewLedgerService(storage LedgerStore, publisher EntryPublisher) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
	}
}

// NewEntry describes an entry to record.
type NewEntry struct {
	Date        core.Date
	Category    core.Category
	Description string
	Amount      core.Money
}

// RecordEntry validates the entry, stores it and publishes an event.
func (s *LedgerService) RecordEntry(ctx context.Context, accountID int64, in NewEntry) (core.Entry, error) {
	e := core.Entry{
		AccountID:   accountID,
		Date:        in.Date,
		Category:    in.Category,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}

	// Save to SQLite first, the event is best effort
	id, err := s.storage.AddEntry(ctx, e)
	if err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}
	e.ID = id

	logger := applog.FromContext(ctx).WithComponent(applog.ComponentLedger)
	logger.InfoContext(ctx, "Entry recorded", applog.NewFields().
		WithOperation(applog.OpRecord).
		WithEntry(e.ID, e.AccountID, string(e.Category), e.Amount.Cents, e.Date.String()).
		ToSlice()...)

	if err := s.publishRecorded(ctx, e); err != nil {
		logger.ErrorContext(ctx, "Failed to publish entry recorded message",
			applog.FieldEntryID, id, applog.FieldError, err)
	}

	return e, nil
}

// Entries returns every entry of the account in insertion order.
func (s *LedgerService) Entries(ctx context.Context, accountID int64) ([]core.Entry, error) {
	entries, err := s.storage.ListEntries(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Overview computes totals, distribution and monthly trend for the account.
func (s *LedgerService) Overview(ctx context.Context, accountID int64) (summary.Overview, error) {
	entries, err := s.Entries(ctx, accountID)
	if err != nil {
		return summary.Overview{}, err
	}
	return summary.Build(entries), nil
}

func (s *LedgerService) publishRecorded(ctx context.Context, e core.Entry) error {
	if s.publisher == nil {
		applog.FromContext(ctx).WithComponent(applog.ComponentAMQP).
			DebugContext(ctx, "AMQP publisher not configured, skipping entry event")
		return nil
	}
	return s.publisher.PublishEntryRecorded(ctx, amqp.NewEntryRecordedMessage(e))
}
