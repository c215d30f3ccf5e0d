package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/calendar"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/model"
	"github.com/quickcal/quickcal-server-go/internal/registry"
)

// Service connects calendar accounts to conversations: the OAuth
// authorization flow for Google and direct credential registration for
// CalDAV. Roster and email label are snapshotted at connection time.
type Service struct {
	google   *calendar.GoogleProvider
	states   StateStore
	registry *registry.Registry
	stateTTL time.Duration
}

func NewService(google *calendar.GoogleProvider, states StateStore, reg *registry.Registry, stateTTL time.Duration) *Service {
	return &Service{
		google:   google,
		states:   states,
		registry: reg,
		stateTTL: stateTTL,
	}
}

// AuthURL produces an authorization URL bound to a fresh
// "{conversationID}:{nonce}" state token and registers the token as pending.
func (s *Service) AuthURL(ctx context.Context, conversationID string) (string, error) {
	if !s.google.Configured() {
		return "", apperrors.Internal("Google OAuth is not configured")
	}

	token := conversationID + ":" + uuid.NewString()
	if err := s.states.Put(ctx, token, s.stateTTL); err != nil {
		return "", apperrors.External("state store", err)
	}

	return s.google.AuthCodeURL(token), nil
}

// HandleCallback validates and consumes the state token, exchanges the code
// for a credential handle, snapshots the calendar roster and email label, and
// registers the account with the conversation recovered from the token.
func (s *Service) HandleCallback(ctx context.Context, state, code string) (string, int, error) {
	// The nonce is the final segment; conversation IDs may themselves
	// contain colons.
	sep := strings.LastIndex(state, ":")
	if sep <= 0 {
		return "", 0, apperrors.InvalidAuthState()
	}
	conversationID := state[:sep]

	ok, err := s.states.Take(ctx, state)
	if err != nil {
		return "", 0, apperrors.External("state store", err)
	}
	if !ok {
		return "", 0, apperrors.InvalidAuthState()
	}

	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return "", 0, apperrors.External("google oauth", err)
	}

	client, err := s.google.Client(ctx, token)
	if err != nil {
		return "", 0, apperrors.External("google calendar", err)
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return "", 0, apperrors.External("google calendar", err)
	}

	email := s.google.Email(ctx, token)

	accountID := s.registry.Register(ctx, conversationID, &model.Account{
		Provider:  model.ProviderGoogle,
		Email:     email,
		Token:     token,
		Calendars: calendars,
	})

	log.Info().
		Str("conversationId", conversationID).
		Int("accountId", accountID).
		Str("email", email).
		Msg("google account connected")

	return conversationID, accountID, nil
}

// RegisterCalDAV connects a CalDAV account from endpoint + basic-auth
// credentials, verifying them by discovering the calendar roster.
func (s *Service) RegisterCalDAV(ctx context.Context, conversationID, endpoint, username, password string) (int, error) {
	creds := &model.CalDAVCredentials{
		Endpoint: endpoint,
		Username: username,
		Password: password,
	}

	client, err := calendar.NewCalDAVClient(creds)
	if err != nil {
		return 0, apperrors.External("caldav", err)
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return 0, apperrors.External("caldav", err)
	}
	if len(calendars) == 0 {
		return 0, apperrors.ValidationError(fmt.Sprintf("No calendars found at %s", endpoint))
	}

	accountID := s.registry.Register(ctx, conversationID, &model.Account{
		Provider:  model.ProviderCalDAV,
		Email:     username,
		CalDAV:    creds,
		Calendars: calendars,
	})

	log.Info().
		Str("conversationId", conversationID).
		Int("accountId", accountID).
		Str("endpoint", endpoint).
		Msg("caldav account connected")

	return accountID, nil
}
