package handler

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/auth"
	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
)

// OAuthHandler terminates the provider redirect. It is a thin boundary: the
// state/code exchange and account registration live in the auth service.
type OAuthHandler struct {
	authService *auth.Service
}

func NewOAuthHandler(authService *auth.Service) *OAuthHandler {
	return &OAuthHandler{authService: authService}
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		writePage(w, http.StatusBadRequest, "Authorization failed", "The authorization response was incomplete. Go back to the chat and send /auth again.")
		return
	}

	conversationID, accountID, err := h.authService.HandleCallback(r.Context(), state, code)
	if err != nil {
		log.Error().Err(err).Msg("authorization callback failed")
		if apperrors.IsCode(err, apperrors.ErrCodeInvalidState) {
			writePage(w, http.StatusBadRequest, "Link expired", "This authorization link is no longer valid. Go back to the chat and send /auth again.")
			return
		}
		writePage(w, http.StatusBadGateway, "Authorization failed", "The calendar provider could not be reached. Go back to the chat and send /auth again.")
		return
	}

	log.Info().
		Str("conversationId", conversationID).
		Int("accountId", accountID).
		Msg("authorization callback completed")

	writePage(w, http.StatusOK, "Account connected", fmt.Sprintf("Your calendar is connected as account %d. You can close this tab and return to the chat.", accountID))
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 32em; margin: 4em auto;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, body)
}
