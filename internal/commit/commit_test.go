package commit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcal/quickcal-server-go/internal/calendar"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/registry"
	"github.com/quickcal/quickcal-server-go/internal/store"
)

type insertCall struct {
	accountID  int
	calendarID string
	event      calendar.Event
}

type fakeClient struct {
	accountID int
	insertErr error
	calls     *[]insertCall
	nextID    string
}

func (c *fakeClient) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	return nil, nil
}

func (c *fakeClient) InsertEvent(ctx context.Context, calendarID string, event calendar.Event) (string, error) {
	*c.calls = append(*c.calls, insertCall{accountID: c.accountID, calendarID: calendarID, event: event})
	if c.insertErr != nil {
		return "", c.insertErr
	}
	return c.nextID, nil
}

type fakeClientFactory struct {
	calls     []insertCall
	insertErr error
	clientErr error
}

func (f *fakeClientFactory) ClientFor(ctx context.Context, account *model.Account) (calendar.Client, error) {
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return &fakeClient{accountID: account.ID, insertErr: f.insertErr, calls: &f.calls, nextID: "evt-1"}, nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(store.NewFileStore(filepath.Join(t.TempDir(), "state.json")))
}

func registerAccount(t *testing.T, reg *registry.Registry, conversationID, email string, calendarIDs ...string) int {
	t.Helper()
	calendars := make([]model.Calendar, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		calendars = append(calendars, model.Calendar{ID: id, Summary: id})
	}
	return reg.Register(context.Background(), conversationID, &model.Account{
		Provider:  model.ProviderGoogle,
		Email:     email,
		Calendars: calendars,
	})
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("commits to the targeted account and calendar", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary")
		registerAccount(t, reg, "conv-1", "b@example.com", "primary", "work")
		clients := &fakeClientFactory{}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{
			Title:     "Standup",
			Start:     "2026-09-01T09:00",
			End:       "2026-09-01T09:15",
			AccountID: 2,
			Calendar:  "work",
		}})

		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.Equal(t, "evt-1", results[0].EventID)
		require.Len(t, clients.calls, 1)
		assert.Equal(t, 2, clients.calls[0].accountID)
		assert.Equal(t, "work", clients.calls[0].calendarID)
		assert.Equal(t, "Standup", clients.calls[0].event.Title)
	})

	t.Run("missing account target falls back to the first account", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary")
		registerAccount(t, reg, "conv-1", "b@example.com", "primary")
		clients := &fakeClientFactory{}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{
			Title: "Lunch",
			Start: "2026-09-01T12:00",
			End:   "2026-09-01T13:00",
		}})

		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.Len(t, clients.calls, 1)
		assert.Equal(t, 1, clients.calls[0].accountID)
		assert.Equal(t, "primary", clients.calls[0].calendarID)
	})

	t.Run("no accounts yields a per-candidate error", func(t *testing.T) {
		executor := NewExecutor(newTestRegistry(t), &fakeClientFactory{}, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{Title: "Lunch"}})

		require.Len(t, results, 1)
		assert.True(t, apperrors.IsCode(results[0].Err, apperrors.ErrCodeNoAccounts))
	})

	t.Run("disabled calendar is skipped, not failed", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary", "work")
		_, err := reg.SetDisabled(ctx, "conv-1", 1, "work", true)
		require.NoError(t, err)
		clients := &fakeClientFactory{}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{
			Title:     "Review",
			Start:     "2026-09-01T10:00",
			End:       "2026-09-01T11:00",
			AccountID: 1,
			Calendar:  "work",
		}})

		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
		assert.Contains(t, results[0].SkipReason, "disabled")
		assert.Empty(t, clients.calls)
	})

	t.Run("one failure never blocks the rest of the batch", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary")
		clients := &fakeClientFactory{}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{
			{Title: "Broken", Start: "not a timestamp", End: "2026-09-01T10:00"},
			{Title: "Fine", Start: "2026-09-01T10:00", End: "2026-09-01T11:00"},
		})

		require.Len(t, results, 2)
		assert.True(t, apperrors.IsCode(results[0].Err, apperrors.ErrCodeCommitFailed))
		assert.NoError(t, results[1].Err)
		assert.Equal(t, "evt-1", results[1].EventID)
	})

	t.Run("insert failure is reported as a commit failure", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary")
		clients := &fakeClientFactory{insertErr: errors.New("503 backend unavailable")}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{
			Title: "Standup",
			Start: "2026-09-01T09:00",
			End:   "2026-09-01T09:15",
		}})

		require.Len(t, results, 1)
		assert.True(t, apperrors.IsCode(results[0].Err, apperrors.ErrCodeCommitFailed))
	})

	t.Run("client construction failure is reported per candidate", func(t *testing.T) {
		reg := newTestRegistry(t)
		registerAccount(t, reg, "conv-1", "a@example.com", "primary")
		clients := &fakeClientFactory{clientErr: errors.New("token revoked")}
		executor := NewExecutor(reg, clients, time.UTC)

		results := executor.Commit(ctx, "conv-1", []model.Candidate{{
			Title: "Standup",
			Start: "2026-09-01T09:00",
			End:   "2026-09-01T09:15",
		}})

		require.Len(t, results, 1)
		assert.True(t, apperrors.IsCode(results[0].Err, apperrors.ErrCodeCommitFailed))
	})
}

func TestParseEventTime(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	t.Run("explicit offset wins over the default zone", func(t *testing.T) {
		parsed, err := ParseEventTime("2026-09-01T09:00:00+02:00", seoul)
		require.NoError(t, err)
		_, offset := parsed.Zone()
		assert.Equal(t, 2*60*60, offset)
	})

	t.Run("offset without seconds is accepted", func(t *testing.T) {
		parsed, err := ParseEventTime("2026-09-01T09:00+02:00", seoul)
		require.NoError(t, err)
		_, offset := parsed.Zone()
		assert.Equal(t, 2*60*60, offset)
	})

	t.Run("naive timestamp takes the default zone", func(t *testing.T) {
		parsed, err := ParseEventTime("2026-09-01T09:00", seoul)
		require.NoError(t, err)
		assert.Equal(t, "Asia/Seoul", parsed.Location().String())
		assert.Equal(t, 9, parsed.Hour())
	})

	t.Run("space separator is accepted", func(t *testing.T) {
		parsed, err := ParseEventTime("2026-09-01 09:00:00", time.UTC)
		require.NoError(t, err)
		assert.Equal(t, 9, parsed.Hour())
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := ParseEventTime("next tuesday-ish", time.UTC)
		assert.Error(t, err)
	})
}
