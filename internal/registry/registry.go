package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/store"
)

// Registry owns per-conversation account and calendar state: the connected
// accounts, each account's calendar roster, and the disabled-calendar sets.
// It is an explicit injected store rather than package-level state so tests
// can construct isolated registries per case.
//
// The mutex guards the shared maps against handlers for different
// conversations running concurrently. Ordering of messages within one
// conversation is delegated to the chat transport.
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]*model.ConversationState
	store         store.Store
}

func New(s store.Store) *Registry {
	return &Registry{
		conversations: make(map[string]*model.ConversationState),
		store:         s,
	}
}

// Restore loads the durable snapshot at process start. Stale disabled-set
// entries in the record are tolerated as-is; they are never created fresh.
func (r *Registry) Restore(ctx context.Context) error {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = make(map[string]*model.ConversationState, len(snapshot))
	for conv, state := range snapshot {
		if state == nil {
			continue
		}
		if state.Disabled == nil {
			state.Disabled = make(map[int][]string)
		}
		r.conversations[conv] = state
	}

	log.Info().Int("conversations", len(r.conversations)).Msg("registry restored")
	return nil
}

// Register appends a new account with ID = current count + 1 and persists
// immediately. IDs are 1-based, monotonic and gapless per conversation;
// accounts are never removed individually, so IDs never need reuse handling.
func (r *Registry) Register(ctx context.Context, conversationID string, account *model.Account) int {
	r.mu.Lock()
	state := r.stateLocked(conversationID)
	account.ID = len(state.Accounts) + 1
	state.Accounts = append(state.Accounts, account)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().
		Str("conversationId", conversationID).
		Int("accountId", account.ID).
		Str("provider", string(account.Provider)).
		Str("email", account.Email).
		Int("calendars", len(account.Calendars)).
		Msg("account registered")

	r.persist(ctx, snapshot)
	return account.ID
}

// Accounts returns the conversation's accounts in registration order.
func (r *Registry) Accounts(conversationID string) []*model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.conversations[conversationID]
	if state == nil {
		return nil
	}
	return append([]*model.Account(nil), state.Accounts...)
}

// AccountByID returns the account or nil.
func (r *Registry) AccountByID(conversationID string, accountID int) *model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accountLocked(conversationID, accountID)
}

// FirstAccount returns the first registered account or nil. Candidates with
// no explicit account target fall back to it.
func (r *Registry) FirstAccount(conversationID string) *model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.conversations[conversationID]
	if state == nil || len(state.Accounts) == 0 {
		return nil
	}
	return state.Accounts[0]
}

// ResolveCalendar maps a user-facing calendar reference to a durable calendar
// ID, scoped to one account. A numeric identifier is a 1-based index into the
// account's roster. In strict mode resolution failures are errors naming the
// valid range; in non-strict mode they fall back to returning the identifier
// unresolved, for callers that cannot guarantee an account exists yet.
// Non-numeric identifiers pass through unchanged in both modes.
func (r *Registry) ResolveCalendar(conversationID string, accountID int, identifier string, strict bool) (string, error) {
	index, err := strconv.Atoi(strings.TrimSpace(identifier))
	if err != nil {
		return identifier, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.conversations[conversationID]
	if state == nil || len(state.Accounts) == 0 {
		if strict {
			return "", apperrors.NoAccounts()
		}
		return identifier, nil
	}

	account := r.accountLocked(conversationID, accountID)
	if account == nil {
		if strict {
			return "", apperrors.UnknownAccount(accountID)
		}
		return identifier, nil
	}

	if index < 1 || index > len(account.Calendars) {
		if strict {
			return "", apperrors.InvalidIndex(index, len(account.Calendars))
		}
		return identifier, nil
	}

	return account.Calendars[index-1].ID, nil
}

// SetDisabled adds or removes a calendar from the account's disabled set and
// persists after every change. Disabling an already-disabled calendar (or
// enabling an already-enabled one) is a reported-success no-op; the returned
// flag tells the caller whether anything actually changed.
func (r *Registry) SetDisabled(ctx context.Context, conversationID string, accountID int, calendarID string, disabled bool) (bool, error) {
	r.mu.Lock()

	account := r.accountLocked(conversationID, accountID)
	if account == nil {
		r.mu.Unlock()
		return false, apperrors.UnknownAccount(accountID)
	}

	state := r.conversations[conversationID]
	if state.Disabled == nil {
		state.Disabled = make(map[int][]string)
	}

	current := state.Disabled[accountID]
	changed := false
	if disabled {
		if !containsString(current, calendarID) {
			state.Disabled[accountID] = append(current, calendarID)
			changed = true
		}
	} else {
		filtered := current[:0:0]
		for _, id := range current {
			if id != calendarID {
				filtered = append(filtered, id)
			}
		}
		if len(filtered) != len(current) {
			changed = true
			if len(filtered) == 0 {
				delete(state.Disabled, accountID)
			} else {
				state.Disabled[accountID] = filtered
			}
		}
	}

	var snapshot model.Snapshot
	if changed {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	if changed {
		log.Info().
			Str("conversationId", conversationID).
			Int("accountId", accountID).
			Str("calendarId", calendarID).
			Bool("disabled", disabled).
			Msg("calendar enablement changed")
		r.persist(ctx, snapshot)
	}
	return changed, nil
}

// IsDisabled reports whether the calendar is excluded for the account.
func (r *Registry) IsDisabled(conversationID string, accountID int, calendarID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.conversations[conversationID]
	if state == nil {
		return false
	}
	return state.IsDisabled(accountID, calendarID)
}

// Clear deletes the conversation's accounts and disabled sets entirely and
// persists the deletion.
func (r *Registry) Clear(ctx context.Context, conversationID string) {
	r.mu.Lock()
	delete(r.conversations, conversationID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("conversationId", conversationID).Msg("conversation registry cleared")
	r.persist(ctx, snapshot)
}

// RenderOptions selects the listing mode. EnabledOnly omits disabled
// calendars entirely (used to build generation context so the model never
// proposes a disabled calendar); otherwise disabled calendars are shown but
// annotated.
type RenderOptions struct {
	EnabledOnly bool
}

// Render lists accounts and calendars with 1-based indices.
func (r *Registry) Render(conversationID string, opts RenderOptions) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.conversations[conversationID]
	if state == nil || len(state.Accounts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, account := range state.Accounts {
		label := account.Email
		if label == "" {
			label = string(account.Provider)
		}
		fmt.Fprintf(&b, "Account %d (%s):\n", account.ID, label)
		for i, cal := range account.Calendars {
			disabled := state.IsDisabled(account.ID, cal.ID)
			if disabled && opts.EnabledOnly {
				continue
			}
			name := cal.Summary
			if name == "" {
				name = cal.ID
			}
			if disabled {
				fmt.Fprintf(&b, "  %d. %s (disabled)\n", i+1, name)
			} else {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, name)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// persist writes a full snapshot. Failures are logged and swallowed:
// durability is best-effort and must never break the dispatching path.
func (r *Registry) persist(ctx context.Context, snapshot model.Snapshot) {
	if err := r.store.Save(ctx, snapshot); err != nil {
		log.Error().Err(err).
			Str("code", string(apperrors.ErrCodePersistenceWrite)).
			Msg("failed to persist registry snapshot")
	}
}

func (r *Registry) stateLocked(conversationID string) *model.ConversationState {
	state := r.conversations[conversationID]
	if state == nil {
		state = &model.ConversationState{Disabled: make(map[int][]string)}
		r.conversations[conversationID] = state
	}
	return state
}

func (r *Registry) accountLocked(conversationID string, accountID int) *model.Account {
	state := r.conversations[conversationID]
	if state == nil {
		return nil
	}
	for _, account := range state.Accounts {
		if account.ID == accountID {
			return account
		}
	}
	return nil
}

func (r *Registry) snapshotLocked() model.Snapshot {
	snapshot := make(model.Snapshot, len(r.conversations))
	for conv, state := range r.conversations {
		snapshot[conv] = state
	}
	return snapshot.Clone()
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
