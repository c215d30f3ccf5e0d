package commit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/calendar"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/registry"
)

// Result reports the outcome for one candidate. Exactly one of EventID,
// SkipReason, or Err is meaningful.
type Result struct {
	Title      string
	EventID    string
	SkipReason string
	Err        error
}

// ClientFactory builds a live provider client for an account.
type ClientFactory interface {
	ClientFor(ctx context.Context, account *model.Account) (calendar.Client, error)
}

// Executor dispatches confirmed candidates to their target account and
// calendar. Each candidate is committed independently; one failure never
// blocks the rest, and there is no atomicity across the batch.
type Executor struct {
	registry    *registry.Registry
	clients     ClientFactory
	defaultZone *time.Location
}

func NewExecutor(reg *registry.Registry, clients ClientFactory, defaultZone *time.Location) *Executor {
	return &Executor{
		registry:    reg,
		clients:     clients,
		defaultZone: defaultZone,
	}
}

func (e *Executor) Commit(ctx context.Context, conversationID string, candidates []model.Candidate) []Result {
	results := make([]Result, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, e.commitOne(ctx, conversationID, candidate))
	}
	return results
}

func (e *Executor) commitOne(ctx context.Context, conversationID string, candidate model.Candidate) Result {
	result := Result{Title: candidate.Title}

	var account *model.Account
	if candidate.AccountID != 0 {
		account = e.registry.AccountByID(conversationID, candidate.AccountID)
	}
	if account == nil {
		account = e.registry.FirstAccount(conversationID)
	}
	if account == nil {
		result.Err = apperrors.NoAccounts()
		return result
	}

	// Extraction context only offered enabled calendars, so the identifier is
	// already a real ID (or the primary sentinel) and is not re-resolved here.
	calendarID := candidate.TargetCalendar()

	// Policy guard against stale proposals referencing a since-disabled
	// calendar.
	if e.registry.IsDisabled(conversationID, account.ID, calendarID) {
		result.SkipReason = fmt.Sprintf("calendar %s is disabled", calendarID)
		return result
	}

	start, err := ParseEventTime(candidate.Start, e.defaultZone)
	if err != nil {
		result.Err = apperrors.CommitFailed(candidate.Title, err)
		return result
	}
	end, err := ParseEventTime(candidate.End, e.defaultZone)
	if err != nil {
		result.Err = apperrors.CommitFailed(candidate.Title, err)
		return result
	}

	client, err := e.clients.ClientFor(ctx, account)
	if err != nil {
		result.Err = apperrors.CommitFailed(candidate.Title, err)
		return result
	}

	eventID, err := client.InsertEvent(ctx, calendarID, calendar.Event{
		Title:       candidate.Title,
		Description: candidate.Description,
		Start:       start,
		End:         end,
	})
	if err != nil {
		log.Error().Err(err).
			Str("conversationId", conversationID).
			Int("accountId", account.ID).
			Str("calendarId", calendarID).
			Str("title", candidate.Title).
			Msg("event insert failed")
		result.Err = apperrors.CommitFailed(candidate.Title, err)
		return result
	}

	log.Info().
		Str("conversationId", conversationID).
		Int("accountId", account.ID).
		Str("calendarId", calendarID).
		Str("eventId", eventID).
		Msg("event created")

	result.EventID = eventID
	return result
}

var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04-07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime converts a candidate timestamp to an absolute instant. A
// string carrying an explicit offset is honored as-is; otherwise the default
// zone applies.
func ParseEventTime(value string, defaultZone *time.Location) (time.Time, error) {
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, defaultZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
