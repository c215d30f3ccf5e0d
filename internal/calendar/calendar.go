package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/quickcal/quickcal-server-go/internal/model"
)

// Event is the provider-independent insert payload.
type Event struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// Client is a live capability against one connected account. Clients are
// reconstructed on demand from an account's inert credential material plus
// static provider configuration; they are never persisted.
type Client interface {
	ListCalendars(ctx context.Context) ([]model.Calendar, error)
	InsertEvent(ctx context.Context, calendarID string, event Event) (string, error)
}

// Factory builds clients for accounts of any supported provider.
type Factory struct {
	google *GoogleProvider
}

func NewFactory(google *GoogleProvider) *Factory {
	return &Factory{google: google}
}

func (f *Factory) ClientFor(ctx context.Context, account *model.Account) (Client, error) {
	switch account.Provider {
	case model.ProviderGoogle:
		if account.Token == nil {
			return nil, fmt.Errorf("account %d has no token material", account.ID)
		}
		return f.google.Client(ctx, account.Token)
	case model.ProviderCalDAV:
		if account.CalDAV == nil {
			return nil, fmt.Errorf("account %d has no CalDAV credentials", account.ID)
		}
		return NewCalDAVClient(account.CalDAV)
	default:
		return nil, fmt.Errorf("unknown provider %q", account.Provider)
	}
}
