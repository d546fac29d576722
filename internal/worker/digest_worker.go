// Package worker consumes entry events and keeps per-account spending
// digests up to date in the log.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendbook/internal/amqp"
	"spendbook/internal/cache"
	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/storage"
	"spendbook/internal/summary"
)

// AccountLookup resolves the owner of an event.
type AccountLookup interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
}

// OverviewReader computes the summary of an account.
type OverviewReader interface {
	Overview(ctx context.Context, accountID int64) (summary.Overview, error)
}

// Digest is the state of an account right after an event was applied.
type Digest struct {
	AccountID  int64
	Username   string
	Month      core.MonthKey
	MonthTotal core.Money
	Total      core.Money
	Count      int
	Top        core.Category
}

// DigestWorker recomputes the account summary for every recorded entry.
// Redelivered events are recognised by EventID and skipped.
type DigestWorker struct {
	accounts AccountLookup
	ledger   OverviewReader
	seen     *cache.LRUCache[struct{}]
}

func NewDigestWorker(accounts AccountLookup, ledger OverviewReader, dedupeSize int, dedupeTTL time.Duration) *DigestWorker {
	return &DigestWorker{
		accounts: accounts,
		ledger:   ledger,
		seen:     cache.NewLRUCache[struct{}](dedupeSize, dedupeTTL),
	}
}

// HandleEntryRecorded matches the amqp consumer handler signature.
func (w *DigestWorker) HandleEntryRecorded(ctx context.Context, msg *amqp.EntryRecordedMessage) error {
	_, _, err := w.Apply(ctx, msg)
	return err
}

// Apply processes one event. Events for unknown accounts or with an
// unparseable date are dropped without error so they are not redelivered.
// ok is false when the event was skipped.
func (w *DigestWorker) Apply(ctx context.Context, msg *amqp.EntryRecordedMessage) (d Digest, ok bool, err error) {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentLedger).
		With("event_id", msg.EventID, applog.FieldEntryID, msg.EntryID)

	if _, dup := w.seen.Get(msg.EventID); dup {
		logger.DebugContext(ctx, "Duplicate entry event skipped")
		return Digest{}, false, nil
	}

	date, err := core.ParseDate(msg.Date)
	if err != nil {
		logger.WarnContext(ctx, "Entry event with invalid date dropped", applog.FieldDate, msg.Date)
		return Digest{}, false, nil
	}

	account, err := w.accounts.GetAccount(ctx, msg.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.WarnContext(ctx, "Entry event for unknown account dropped", applog.FieldAccountID, msg.AccountID)
		return Digest{}, false, nil
	}
	if err != nil {
		return Digest{}, false, fmt.Errorf("get account %d: %w", msg.AccountID, err)
	}

	ov, err := w.ledger.Overview(ctx, msg.AccountID)
	if err != nil {
		return Digest{}, false, fmt.Errorf("compute overview for account %d: %w", msg.AccountID, err)
	}

	d = newDigest(account, date.MonthKey(), ov)
	w.seen.Set(msg.EventID, struct{}{})

	logger.InfoContext(ctx, "Spending digest updated",
		applog.FieldAccountID, d.AccountID,
		applog.FieldUsername, d.Username,
		"month", d.Month.String(),
		"month_total", d.MonthTotal.String(),
		"total", d.Total.String(),
		"entries", d.Count,
		"top_category", d.Top)

	return d, true, nil
}

func newDigest(account core.Account, month core.MonthKey, ov summary.Overview) Digest {
	d := Digest{
		AccountID: account.ID,
		Username:  account.Username,
		Month:     month,
		Total:     ov.Total,
		Count:     ov.Count,
	}
	for _, m := range ov.Monthly {
		if m.Month == month {
			d.MonthTotal = m.Amount
			break
		}
	}
	// Distribution is in category order, so ties go to the earlier category.
	var top core.Money
	for _, s := range ov.Distribution {
		if d.Top == "" || s.Amount.Cents > top.Cents {
			d.Top, top = s.Category, s.Amount
		}
	}
	return d
}
