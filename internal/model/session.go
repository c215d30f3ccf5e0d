package model

// Session tracks the current proposal lifecycle for one conversation. It
// exists only while a proposal is unconfirmed: created on the first free-text
// message, replaced wholesale by a new free-text message, deleted on /confirm.
type Session struct {
	// Candidates is replaced wholesale on each successful extraction.
	Candidates []Candidate

	// OriginalText is the free-text message that started this proposal;
	// immutable for the session's lifetime.
	OriginalText string

	// ExtractionTrace is the concatenation of every JSON proposal emitted so
	// far, fed back into edit prompts as context. Append-only.
	ExtractionTrace string

	// EditHistory is the concatenation of every edit instruction issued so
	// far. Append-only.
	EditHistory string
}
