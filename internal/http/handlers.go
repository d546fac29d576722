package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
	"spendbook/internal/storage"
	"spendbook/internal/summary"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type entryRequest struct {
	Date        string      `json:"date"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Amount      amountField `json:"amount"`
}

// amountField holds the raw text of an amount sent either as a JSON number
// or as a string, so both go through core.ParseAmount.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a number or a numeric string")
	}
	*a = amountField(n)
	return nil
}

type entryResponse struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type shareResponse struct {
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Percent     string `json:"percent"`
}

type monthResponse struct {
	Month       string `json:"month"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

type summaryResponse struct {
	Count        int             `json:"count"`
	Total        string          `json:"total"`
	TotalCents   int64           `json:"total_cents"`
	Distribution []shareResponse `json:"distribution"`
	Monthly      []monthResponse `json:"monthly"`
}

func newEntryResponse(e core.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Date:        e.Date.String(),
		Category:    e.Category.String(),
		Description: e.Description,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		CreatedAt:   e.CreatedAt,
	}
}

func newSummaryResponse(ov summary.Overview) summaryResponse {
	resp := summaryResponse{
		Count:        ov.Count,
		Total:        ov.Total.String(),
		TotalCents:   ov.Total.Cents,
		Distribution: make([]shareResponse, 0, len(ov.Distribution)),
		Monthly:      make([]monthResponse, 0, len(ov.Monthly)),
	}
	for _, s := range ov.Distribution {
		resp.Distribution = append(resp.Distribution, shareResponse{
			Category:    s.Category.String(),
			Amount:      s.Amount.String(),
			AmountCents: s.Amount.Cents,
			Percent:     s.Percent.StringFixed(2),
		})
	}
	for _, m := range ov.Monthly {
		resp.Monthly = append(resp.Monthly, monthResponse{
			Month:       m.Month.String(),
			Amount:      m.Amount.String(),
			AmountCents: m.Amount.Cents,
		})
	}
	return resp
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": names})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.accounts.Register(r.Context(), sanitizeInput(req.Username), req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"username": sanitizeInput(req.Username)})
	case errors.Is(err, services.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "username already exists")
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.internalError(w, r, "Registration failed", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.accounts.Login(r.Context(), sanitizeInput(req.Username), req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     session.Token,
			AccountID: session.AccountID,
			Username:  session.Username,
			ExpiresAt: session.ExpiresAt,
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		s.metrics.unauthorized.Add(1)
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	default:
		s.internalError(w, r, "Login failed", err)
	}
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request, accountID int64) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := parseEntryRequest(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	entry, err := s.ledger.RecordEntry(r.Context(), accountID, in)
	switch {
	case err == nil:
		s.invalidateSummary(accountID)
		writeJSON(w, http.StatusCreated, newEntryResponse(entry))
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storage.ErrAccountNotFound):
		s.unauthorized(w, r, "account no longer exists")
	default:
		s.internalError(w, r, "Entry creation failed", err)
	}
}

func parseEntryRequest(req entryRequest) (services.NewEntry, error) {
	date, err := core.ParseDate(sanitizeInput(req.Date))
	if err != nil {
		return services.NewEntry{}, err
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		return services.NewEntry{}, err
	}
	if req.Amount == "" {
		return services.NewEntry{}, core.ErrInvalidAmount
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return services.NewEntry{}, err
	}
	return services.NewEntry{
		Date:        date,
		Category:    category,
		Description: sanitizeInput(req.Description),
		Amount:      amount,
	}, nil
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request, accountID int64) {
	entries, err := s.ledger.Entries(r.Context(), accountID)
	if err != nil {
		s.internalError(w, r, "Listing entries failed", err)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": resp, "count": len(resp)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, accountID int64) {
	resp, err := s.getSummary(r.Context(), accountID)
	if err != nil {
		s.internalError(w, r, "Summary failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func summaryKey(accountID int64) string {
	return "summary:" + strconv.FormatInt(accountID, 10)
}

// getSummary serves the overview from cache, collapsing concurrent misses
// for the same account into one computation.
func (s *Server) getSummary(ctx context.Context, accountID int64) (summaryResponse, error) {
	key := summaryKey(accountID)
	if resp, ok := s.summaries.Get(key); ok {
		applog.FromContext(ctx).DebugContext(ctx, "Summary cache hit")
		return resp, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		gen := s.summaryGen.Load()
		ov, err := s.ledger.Overview(ctx, accountID)
		if err != nil {
			return summaryResponse{}, err
		}
		resp := newSummaryResponse(ov)
		// A write that landed while computing must not be hidden by the cache.
		if s.summaryGen.Load() == gen {
			s.summaries.Set(key, resp)
		}
		return resp, nil
	})
	if err != nil {
		return summaryResponse{}, err
	}
	return v.(summaryResponse), nil
}

func (s *Server) invalidateSummary(accountID int64) {
	key := summaryKey(accountID)
	s.summaryGen.Add(1)
	s.loads.Forget(key)
	s.summaries.Delete(key)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), msg, applog.FieldError, err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrNegativeAmount,
	core.ErrUnknownCategory,
	core.ErrDescriptionTooLong,
	core.ErrEmptyUsername,
	core.ErrEmptyCredential,
	core.ErrUsernameTooLong,
	core.ErrCredentialTooLong,
	core.ErrInvalidAccount,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
