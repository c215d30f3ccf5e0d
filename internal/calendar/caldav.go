package calendar

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/quickcal/quickcal-server-go/internal/model"
)

// basicAuthTransport adds basic auth to every CalDAV request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "quickcal/1.0")
	return t.transport.RoundTrip(req)
}

// CalDAVClient targets a generic CalDAV server with basic-auth credentials.
type CalDAVClient struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
}

func NewCalDAVClient(creds *model.CalDAVCredentials) (*CalDAVClient, error) {
	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username:  creds.Username,
			password:  creds.Password,
			transport: http.DefaultTransport,
		},
	}

	caldavClient, err := caldav.NewClient(httpClient, creds.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, creds.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create webdav client: %w", err)
	}

	return &CalDAVClient{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
	}, nil
}

// ListCalendars discovers the user's calendars. Calendar IDs are server paths.
func (c *CalDAVClient) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	principal, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := c.caldavClient.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home set: %w", err)
	}

	found, err := c.caldavClient.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	calendars := make([]model.Calendar, 0, len(found))
	for _, cal := range found {
		calendars = append(calendars, model.Calendar{ID: cal.Path, Summary: cal.Name})
	}
	return calendars, nil
}

// InsertEvent PUTs a fresh VEVENT into the calendar at calendarID (a server
// path). The primary sentinel resolves to the first discovered calendar.
func (c *CalDAVClient) InsertEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	if calendarID == model.CalendarPrimary {
		calendars, err := c.ListCalendars(ctx)
		if err != nil {
			return "", err
		}
		if len(calendars) == 0 {
			return "", fmt.Errorf("no calendars available on server")
		}
		calendarID = calendars[0].ID
	}

	uid := uuid.New().String()

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.End)
	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//quickcal//EN")
	cal.Children = append(cal.Children, ve)

	eventPath := path.Join(calendarID, uid+".ics")
	writer, err := c.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return "", fmt.Errorf("create event on server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return uid, nil
}
