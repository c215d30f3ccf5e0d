package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/auth"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/httputil"
	"github.com/quickcal/quickcal-server-go/internal/registry"
	"github.com/quickcal/quickcal-server-go/internal/session"
)

const helpText = `I turn plain-text descriptions into calendar events.

Connect a calendar:
• /auth — connect a Google account
• /caldav <url> <username> <password> — connect a CalDAV account

Manage calendars:
• /calendars [enabled] — list accounts and calendars
• /disable <account> <calendar> — exclude a calendar
• /enable <account> <calendar> — include it again

Create events:
• describe the event in plain text
• /edit <changes> — adjust the proposal
• /confirm — create the proposed events
• /clear — forget all accounts and settings`

type Command struct {
	Verb string
	Args string
}

// parseCommand recognizes a leading slash verb. Free text returns nil.
func parseCommand(text string) *Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}

	verb, args, _ := strings.Cut(trimmed, " ")
	return &Command{Verb: verb, Args: strings.TrimSpace(args)}
}

type WebhookHandler struct {
	authService *auth.Service
	registry    *registry.Registry
	sessions    *session.Manager
}

func NewWebhookHandler(authService *auth.Service, reg *registry.Registry, sessions *session.Manager) *WebhookHandler {
	return &WebhookHandler{
		authService: authService,
		registry:    reg,
		sessions:    sessions,
	}
}

func (h *WebhookHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid webhook request")
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.ConversationID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId is required"})
		return
	}

	log.Info().
		Str("conversationId", req.ConversationID).
		Str("text", truncate(req.Text, 50)).
		Msg("received message")

	reply := h.handleMessage(r.Context(), req.ConversationID, req.Text)
	httputil.WriteJSON(w, http.StatusOK, NewTextResponse(reply))
}

func (h *WebhookHandler) handleMessage(ctx context.Context, conversationID, text string) string {
	cmd := parseCommand(text)
	if cmd == nil {
		if strings.TrimSpace(text) == "" {
			return "Describe an event, or send /start for help."
		}
		reply, err := h.sessions.Propose(ctx, conversationID, text)
		if err != nil {
			return userMessage(err)
		}
		return reply
	}

	switch cmd.Verb {
	case "/start":
		return helpText

	case "/auth":
		url, err := h.authService.AuthURL(ctx, conversationID)
		if err != nil {
			return userMessage(err)
		}
		return "Open this link to connect your Google account:\n" + url

	case "/caldav":
		fields := strings.Fields(cmd.Args)
		if len(fields) != 3 {
			return "Usage: /caldav <url> <username> <password>"
		}
		accountID, err := h.authService.RegisterCalDAV(ctx, conversationID, fields[0], fields[1], fields[2])
		if err != nil {
			return userMessage(err)
		}
		return fmt.Sprintf("✅ CalDAV account connected as account %d. Send /calendars to see its calendars.", accountID)

	case "/calendars":
		enabledOnly := cmd.Args == "enabled"
		listing := h.registry.Render(conversationID, registry.RenderOptions{EnabledOnly: enabledOnly})
		if listing == "" {
			return "No calendar accounts connected yet. Use /auth to connect one."
		}
		return listing

	case "/disable":
		return h.setDisabled(ctx, conversationID, cmd.Args, true)

	case "/enable":
		return h.setDisabled(ctx, conversationID, cmd.Args, false)

	case "/confirm":
		reply, err := h.sessions.Confirm(ctx, conversationID)
		if err != nil {
			return userMessage(err)
		}
		return reply

	case "/edit":
		reply, err := h.sessions.Edit(ctx, conversationID, cmd.Args)
		if err != nil {
			return userMessage(err)
		}
		return reply

	case "/clear":
		h.sessions.Discard(conversationID)
		h.registry.Clear(ctx, conversationID)
		return "All accounts and settings for this conversation have been forgotten."

	default:
		return "Unrecognized command. Send /start for help."
	}
}

func (h *WebhookHandler) setDisabled(ctx context.Context, conversationID, args string, disabled bool) string {
	fields := strings.Fields(args)
	verb := "/enable"
	if disabled {
		verb = "/disable"
	}
	if len(fields) != 2 {
		return fmt.Sprintf("Usage: %s <account> <calendar>", verb)
	}

	accountID, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Sprintf("Account must be a number. Usage: %s <account> <calendar>", verb)
	}

	calendarID, err := h.registry.ResolveCalendar(conversationID, accountID, fields[1], true)
	if err != nil {
		return userMessage(err)
	}

	changed, err := h.registry.SetDisabled(ctx, conversationID, accountID, calendarID, disabled)
	if err != nil {
		return userMessage(err)
	}

	if disabled {
		return fmt.Sprintf("🚫 Calendar %s on account %d is now disabled.", calendarID, accountID)
	}
	if !changed {
		return fmt.Sprintf("Calendar %s on account %d was not disabled.", calendarID, accountID)
	}
	return fmt.Sprintf("✅ Calendar %s on account %d is enabled again.", calendarID, accountID)
}

// userMessage maps an error to the chat reply. Registry resolution errors are
// user-correctable and surfaced verbatim; extraction internals are logged and
// replaced by a generic retry notice.
func userMessage(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unexpected error handling message")
		return "Something went wrong. Please try again."
	}

	switch appErr.Code {
	case apperrors.ErrCodeNoAccounts,
		apperrors.ErrCodeUnknownAccount,
		apperrors.ErrCodeInvalidIndex,
		apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingRequired:
		return appErr.Message
	case apperrors.ErrCodeExtractionExhausted,
		apperrors.ErrCodeNoJSONFound,
		apperrors.ErrCodeMalformedJSON:
		log.Error().Err(err).Msg("extraction failed")
		return "I couldn't turn that into calendar events. Please rephrase and try again."
	case apperrors.ErrCodeInternal:
		return appErr.Message
	default:
		log.Error().Err(err).Msg("error handling message")
		return "Something went wrong. Please try again."
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
