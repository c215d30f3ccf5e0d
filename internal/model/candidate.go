package model

// CalendarPrimary is the sentinel candidates carry when no specific calendar
// was chosen; the provider resolves it to the account's default calendar.
const CalendarPrimary = "primary"

// Candidate is one unconfirmed, extracted event proposal awaiting commit.
// Start and End are kept as strings: they carry an explicit UTC offset when
// the user named a zone, and are otherwise interpreted against the process
// default zone at commit time.
type Candidate struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start_time"`
	End         string `json:"end_time"`
	AccountID   int    `json:"account_id,omitempty"`
	Calendar    string `json:"calendar,omitempty"`
}

// TargetCalendar returns the calendar identifier the candidate should be
// committed to, falling back to the primary sentinel.
func (c Candidate) TargetCalendar() string {
	if c.Calendar == "" {
		return CalendarPrimary
	}
	return c.Calendar
}
