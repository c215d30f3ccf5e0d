package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/commit"
	"github.com/quickcal/quickcal-server-go/internal/extract"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/registry"
)

// Extractor is the extraction engine surface the manager depends on.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) ([]model.Candidate, string, error)
}

// Committer dispatches confirmed candidates.
type Committer interface {
	Commit(ctx context.Context, conversationID string, candidates []model.Candidate) []commit.Result
}

// Manager owns the per-conversation proposal lifecycle: no session → proposed
// → (edited)* → confirmed or discarded. A session exists only while a
// proposal is pending.
//
// The mutex covers concurrent handlers for different conversations; in-order
// delivery within one conversation is the transport's responsibility.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	engine      Extractor
	registry    *registry.Registry
	committer   Committer
	defaultZone *time.Location
	now         func() time.Time
}

func NewManager(engine Extractor, reg *registry.Registry, committer Committer, defaultZone *time.Location) *Manager {
	return &Manager{
		sessions:    make(map[string]*model.Session),
		engine:      engine,
		registry:    reg,
		committer:   committer,
		defaultZone: defaultZone,
		now:         time.Now,
	}
}

// Propose starts a fresh proposal from free text. Any existing session is
// discarded and replaced, never merged: a new top-level description restarts
// the lifecycle. On extraction failure no session is created or kept.
func (m *Manager) Propose(ctx context.Context, conversationID, text string) (string, error) {
	candidates, rawJSON, err := m.engine.Extract(ctx, extract.Request{
		Text:            text,
		CalendarContext: m.registry.Render(conversationID, registry.RenderOptions{EnabledOnly: true}),
		Now:             m.now(),
		DefaultZone:     m.defaultZone,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, conversationID)
		m.mu.Unlock()
		return "", err
	}

	m.mu.Lock()
	m.sessions[conversationID] = &model.Session{
		Candidates:      candidates,
		OriginalText:    text,
		ExtractionTrace: rawJSON,
	}
	m.mu.Unlock()

	log.Info().
		Str("conversationId", conversationID).
		Int("candidates", len(candidates)).
		Msg("proposal created")

	return renderProposal(candidates), nil
}

// Edit re-extracts with the accumulated edit context. On failure the session
// is left untouched; on success candidates are replaced wholesale and the
// trace and history grow append-only.
func (m *Manager) Edit(ctx context.Context, conversationID, delta string) (string, error) {
	delta = strings.TrimSpace(delta)
	if delta == "" {
		return "Please provide the changes you want, e.g. /edit move it to 3pm", nil
	}

	m.mu.Lock()
	sess := m.sessions[conversationID]
	m.mu.Unlock()
	if sess == nil {
		return "Nothing to edit. Describe an event first.", nil
	}

	candidates, rawJSON, err := m.engine.Extract(ctx, extract.Request{
		Text:            sess.OriginalText + "\n\nRequested change: " + delta,
		CalendarContext: m.registry.Render(conversationID, registry.RenderOptions{EnabledOnly: true}),
		PriorTrace:      sess.ExtractionTrace,
		EditHistory:     sess.EditHistory,
		Now:             m.now(),
		DefaultZone:     m.defaultZone,
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	// Re-check under the lock: the session may have been discarded while the
	// backend call was in flight.
	sess = m.sessions[conversationID]
	if sess == nil {
		m.mu.Unlock()
		return "Nothing to edit. Describe an event first.", nil
	}
	sess.Candidates = candidates
	sess.ExtractionTrace += "\n" + rawJSON
	sess.EditHistory += "\n" + delta
	m.mu.Unlock()

	log.Info().
		Str("conversationId", conversationID).
		Int("candidates", len(candidates)).
		Msg("proposal edited")

	return renderProposal(candidates), nil
}

// Confirm dispatches every pending candidate in list order and reports each
// outcome individually. The session is deleted unconditionally afterward,
// even when some commits failed.
func (m *Manager) Confirm(ctx context.Context, conversationID string) (string, error) {
	m.mu.Lock()
	sess := m.sessions[conversationID]
	delete(m.sessions, conversationID)
	m.mu.Unlock()

	if sess == nil {
		return "Nothing pending. Describe an event first.", nil
	}

	results := m.committer.Commit(ctx, conversationID, sess.Candidates)

	var b strings.Builder
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "❌ %s: could not be created\n", r.Title)
		case r.SkipReason != "":
			fmt.Fprintf(&b, "⚠️ %s: skipped (%s)\n", r.Title, r.SkipReason)
		default:
			fmt.Fprintf(&b, "✅ %s: created\n", r.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Discard drops the conversation's session, if any.
func (m *Manager) Discard(conversationID string) {
	m.mu.Lock()
	delete(m.sessions, conversationID)
	m.mu.Unlock()
}

// Session returns the current session or nil. Intended for tests and
// diagnostics.
func (m *Manager) Session(conversationID string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[conversationID]
}

func renderProposal(candidates []model.Candidate) string {
	if len(candidates) == 0 {
		return "I couldn't find any events in that. Try describing what, when, and how long."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Proposed %d event(s):\n", len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n   %s → %s", i+1, c.Title, c.Start, c.End)
		if c.AccountID != 0 {
			fmt.Fprintf(&b, " (account %d, %s)", c.AccountID, c.TargetCalendar())
		}
		b.WriteString("\n")
	}
	b.WriteString("\nReply /edit <changes> to adjust, or /confirm to create.")
	return b.String()
}
