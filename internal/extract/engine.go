package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
	"github.com/quickcal/quickcal-server-go/internal/model"
)

// Generator is a single text-generation backend. The engine iterates an
// ordered list of these, most-capable first, instead of hard-coding a chain
// of fallback calls.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request carries everything one extraction call needs.
type Request struct {
	// Text is the user's free-text description, or the edit delta combined
	// with the original text by the caller's prompt context below.
	Text string

	// CalendarContext is the enabled-only account/calendar listing; the model
	// never sees disabled calendars.
	CalendarContext string

	// PriorTrace is the concatenation of earlier proposal JSON, present on
	// edit calls only.
	PriorTrace string

	// EditHistory is the concatenation of earlier edit instructions, present
	// on edit calls only.
	EditHistory string

	Now         time.Time
	DefaultZone *time.Location
}

// Engine turns free text into candidate events via an ordered fallback chain
// of generation backends and a tolerant JSON-extraction step.
type Engine struct {
	generators []Generator
}

func NewEngine(generators ...Generator) *Engine {
	return &Engine{generators: generators}
}

// Extract runs the backend chain and parses the first non-empty response.
// Backend errors and empty outputs advance to the next model; once a backend
// has produced output, a scan or parse failure is fatal for the whole call —
// retries happen only at the fallback level. The raw JSON text is returned
// alongside the candidates so the caller can append it to the session trace.
func (e *Engine) Extract(ctx context.Context, req Request) ([]model.Candidate, string, error) {
	prompt := buildPrompt(req)

	var raw string
	for _, g := range e.generators {
		out, err := g.Generate(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Str("backend", g.Name()).Msg("generation backend failed, trying next")
			continue
		}
		if strings.TrimSpace(out) == "" {
			log.Warn().Str("backend", g.Name()).Msg("generation backend returned empty output, trying next")
			continue
		}
		log.Debug().Str("backend", g.Name()).Int("length", len(out)).Msg("generation succeeded")
		raw = out
		break
	}
	if raw == "" {
		return nil, "", apperrors.ExtractionExhausted()
	}

	payload, isArray, err := ScanJSON(raw)
	if err != nil {
		return nil, "", err
	}

	var candidates []model.Candidate
	if isArray {
		if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
			return nil, "", apperrors.MalformedJSON(err)
		}
	} else {
		var single model.Candidate
		if err := json.Unmarshal([]byte(payload), &single); err != nil {
			return nil, "", apperrors.MalformedJSON(err)
		}
		candidates = []model.Candidate{single}
	}

	return candidates, payload, nil
}

const outputSchema = `[
  {
    "title": "string",
    "description": "string",
    "start_time": "YYYY-MM-DDTHH:MM:SS with UTC offset only when the user named a time zone",
    "end_time": "same format as start_time",
    "account_id": 1,
    "calendar": "calendar id, or \"primary\" when unspecified"
  }
]`

func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You convert natural-language descriptions into calendar event candidates.\n\n")
	fmt.Fprintf(&b, "Current date: %s\n", req.Now.Format("Monday, 2006-01-02"))
	fmt.Fprintf(&b, "Default time zone: %s\n\n", req.DefaultZone.String())

	if req.CalendarContext != "" {
		b.WriteString("Connected accounts and calendars (choose account_id and calendar only from these):\n")
		b.WriteString(req.CalendarContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Respond with only a JSON array matching this schema:\n")
	b.WriteString(outputSchema)
	b.WriteString("\n\n")

	if req.PriorTrace != "" {
		b.WriteString("Previously proposed events:\n")
		b.WriteString(req.PriorTrace)
		b.WriteString("\n\n")
	}
	if req.EditHistory != "" {
		b.WriteString("Changes requested so far:\n")
		b.WriteString(req.EditHistory)
		b.WriteString("\n\n")
	}

	b.WriteString("User request:\n")
	b.WriteString(req.Text)
	b.WriteString("\n")

	return b.String()
}
