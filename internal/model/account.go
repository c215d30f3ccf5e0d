package model

import (
	"golang.org/x/oauth2"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderCalDAV Provider = "caldav"
)

// Calendar is one entry of an account's calendar roster, snapshotted at
// connection time. Its 1-based position in the roster is the user-facing
// calendar index; the index is a display convenience, not a stable identifier.
type Calendar struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// CalDAVCredentials is the inert credential material for a CalDAV account.
type CalDAVCredentials struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Account is one authenticated calendar identity connected to a conversation.
// IDs are assigned sequentially starting at 1 and are never reused: individual
// accounts cannot be removed, only the whole conversation via /clear.
//
// Credential material is inert here; live provider clients are reconstructed
// on demand from it plus static client configuration.
type Account struct {
	ID        int                `json:"accountId"`
	Provider  Provider           `json:"provider"`
	Email     string             `json:"email,omitempty"`
	Token     *oauth2.Token      `json:"token,omitempty"`
	CalDAV    *CalDAVCredentials `json:"caldav,omitempty"`
	Calendars []Calendar         `json:"calendars"`
}

// ConversationState is everything durable for one conversation: the connected
// accounts and the per-account set of disabled calendar IDs.
type ConversationState struct {
	Accounts []*Account       `json:"accounts"`
	Disabled map[int][]string `json:"disabledCalendars,omitempty"`
}

// IsDisabled reports whether the calendar is in the account's disabled set.
func (s *ConversationState) IsDisabled(accountID int, calendarID string) bool {
	for _, id := range s.Disabled[accountID] {
		if id == calendarID {
			return true
		}
	}
	return false
}
