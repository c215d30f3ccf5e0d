package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcal/quickcal-server-go/internal/auth"
	"github.com/quickcal/quickcal-server-go/internal/calendar"
	"github.com/quickcal/quickcal-server-go/internal/commit"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/extract"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/registry"
	"github.com/quickcal/quickcal-server-go/internal/session"
	"github.com/quickcal/quickcal-server-go/internal/store"
)

type fakeExtractor struct {
	candidates []model.Candidate
	rawJSON    string
	err        error
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) ([]model.Candidate, string, error) {
	return f.candidates, f.rawJSON, f.err
}

type fakeCommitter struct {
	results []commit.Result
}

func (f *fakeCommitter) Commit(ctx context.Context, conversationID string, candidates []model.Candidate) []commit.Result {
	return f.results
}

type testHarness struct {
	handler  *WebhookHandler
	registry *registry.Registry
	sessions *session.Manager
}

func newTestHarness(t *testing.T, extractor *fakeExtractor, committer *fakeCommitter) *testHarness {
	t.Helper()

	reg := registry.New(store.NewFileStore(filepath.Join(t.TempDir(), "state.json")))
	sessions := session.NewManager(extractor, reg, committer, time.UTC)

	// Unconfigured provider: /auth replies with the configuration notice.
	google := calendar.NewGoogleProvider("", "", "http://localhost:8080/oauth/callback")
	authService := auth.NewService(google, auth.NewMemoryStateStore(), reg, 10*time.Minute)

	return &testHarness{
		handler:  NewWebhookHandler(authService, reg, sessions),
		registry: reg,
		sessions: sessions,
	}
}

func (h *testHarness) send(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.Webhook(rec, req)
	return rec
}

func (h *testHarness) message(t *testing.T, conversationID, text string) string {
	t.Helper()
	body, err := json.Marshal(WebhookRequest{ConversationID: conversationID, Text: text})
	require.NoError(t, err)

	rec := h.send(t, string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Replies, 1)
	return resp.Replies[0].Text
}

func (h *testHarness) registerAccount(t *testing.T, conversationID, email string, calendarIDs ...string) {
	t.Helper()
	calendars := make([]model.Calendar, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		calendars = append(calendars, model.Calendar{ID: id, Summary: id})
	}
	h.registry.Register(context.Background(), conversationID, &model.Account{
		Provider:  model.ProviderGoogle,
		Email:     email,
		Calendars: calendars,
	})
}

func TestWebhookRequestValidation(t *testing.T) {
	h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		rec := h.send(t, "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing conversation id", func(t *testing.T) {
		rec := h.send(t, `{"text":"/start"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "conversationId")
	})
}

func TestCommands(t *testing.T) {
	t.Run("/start returns help", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/start")
		assert.Contains(t, reply, "/auth")
		assert.Contains(t, reply, "/confirm")
	})

	t.Run("unrecognized command points at help", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/frobnicate")
		assert.Contains(t, reply, "Unrecognized command")
	})

	t.Run("/auth without oauth configuration explains the problem", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/auth")
		assert.Contains(t, reply, "not configured")
	})

	t.Run("/caldav validates its argument count", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/caldav https://dav.example.com alice")
		assert.Contains(t, reply, "Usage: /caldav")
	})

	t.Run("empty text prompts for input", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "   ")
		assert.Contains(t, reply, "/start")
	})
}

func TestCalendarListing(t *testing.T) {
	t.Run("no accounts yet", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/calendars")
		assert.Contains(t, reply, "No calendar accounts connected yet")
	})

	t.Run("lists accounts with indices", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary", "work")

		reply := h.message(t, "conv-1", "/calendars")
		assert.Contains(t, reply, "Account 1 (a@example.com):")
		assert.Contains(t, reply, "1. primary")
		assert.Contains(t, reply, "2. work")
	})

	t.Run("enabled filter omits disabled calendars", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary", "work")
		h.message(t, "conv-1", "/disable 1 work")

		reply := h.message(t, "conv-1", "/calendars enabled")
		assert.Contains(t, reply, "primary")
		assert.NotContains(t, reply, "work")
	})
}

func TestEnableDisable(t *testing.T) {
	t.Run("disable by index, enable by id", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary", "work")

		reply := h.message(t, "conv-1", "/disable 1 2")
		assert.Contains(t, reply, "work")
		assert.Contains(t, reply, "disabled")
		assert.True(t, h.registry.IsDisabled("conv-1", 1, "work"))

		reply = h.message(t, "conv-1", "/enable 1 work")
		assert.Contains(t, reply, "enabled again")
		assert.False(t, h.registry.IsDisabled("conv-1", 1, "work"))
	})

	t.Run("enabling a calendar that was not disabled says so", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary")

		reply := h.message(t, "conv-1", "/enable 1 primary")
		assert.Contains(t, reply, "was not disabled")
	})

	t.Run("out-of-range index surfaces the valid range", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary", "work")

		reply := h.message(t, "conv-1", "/disable 1 3")
		assert.Contains(t, reply, "out of range")
		assert.Contains(t, reply, "1-2")
	})

	t.Run("usage notice for wrong arity", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/disable work")
		assert.Contains(t, reply, "Usage: /disable")
	})

	t.Run("non-numeric account is rejected", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/disable one work")
		assert.Contains(t, reply, "Account must be a number")
	})
}

func TestProposalFlow(t *testing.T) {
	t.Run("free text proposes and /confirm commits", func(t *testing.T) {
		extractor := &fakeExtractor{
			candidates: []model.Candidate{{Title: "Standup", Start: "2026-09-01T09:00", End: "2026-09-01T09:15"}},
			rawJSON:    `[{"title":"Standup"}]`,
		}
		committer := &fakeCommitter{results: []commit.Result{{Title: "Standup", EventID: "evt-1"}}}
		h := newTestHarness(t, extractor, committer)

		reply := h.message(t, "conv-1", "standup tomorrow at 9")
		assert.Contains(t, reply, "Standup")
		assert.Contains(t, reply, "/confirm")

		reply = h.message(t, "conv-1", "/confirm")
		assert.Contains(t, reply, "✅ Standup: created")

		reply = h.message(t, "conv-1", "/confirm")
		assert.Contains(t, reply, "Nothing pending")
	})

	t.Run("extraction failure becomes a rephrase notice", func(t *testing.T) {
		extractor := &fakeExtractor{err: apperrors.ExtractionExhausted()}
		h := newTestHarness(t, extractor, &fakeCommitter{})

		reply := h.message(t, "conv-1", "standup tomorrow")
		assert.Contains(t, reply, "rephrase")
	})

	t.Run("/edit without a proposal", func(t *testing.T) {
		h := newTestHarness(t, &fakeExtractor{}, &fakeCommitter{})
		reply := h.message(t, "conv-1", "/edit move it to 3pm")
		assert.Contains(t, reply, "Nothing to edit")
	})

	t.Run("/clear forgets the session and the registry", func(t *testing.T) {
		extractor := &fakeExtractor{
			candidates: []model.Candidate{{Title: "Standup"}},
			rawJSON:    `[]`,
		}
		h := newTestHarness(t, extractor, &fakeCommitter{})
		h.registerAccount(t, "conv-1", "a@example.com", "primary")
		h.message(t, "conv-1", "standup tomorrow")

		reply := h.message(t, "conv-1", "/clear")
		assert.Contains(t, reply, "forgotten")
		assert.Nil(t, h.sessions.Session("conv-1"))
		assert.Empty(t, h.registry.Accounts("conv-1"))
	})
}

func TestParseCommand(t *testing.T) {
	t.Run("splits verb and args", func(t *testing.T) {
		cmd := parseCommand("/disable 1 work")
		require.NotNil(t, cmd)
		assert.Equal(t, "/disable", cmd.Verb)
		assert.Equal(t, "1 work", cmd.Args)
	})

	t.Run("tolerates surrounding whitespace", func(t *testing.T) {
		cmd := parseCommand("  /confirm  ")
		require.NotNil(t, cmd)
		assert.Equal(t, "/confirm", cmd.Verb)
		assert.Empty(t, cmd.Args)
	})

	t.Run("free text is not a command", func(t *testing.T) {
		assert.Nil(t, parseCommand("meet bob at 3pm"))
	})
}
