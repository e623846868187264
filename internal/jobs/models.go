package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an upload job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

var allStatuses = []Status{
	StatusQueued,
	StatusTranscribing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job represents one upload request persisted in SQLite. Identities are the
// content hashes assigned by the upload store; file names are the stored
// `{identity}{ext}` names the HTTP layer turns into /uploads URLs.
type Job struct {
	ID            string
	Title         string
	PDFIdentity   string
	AudioIdentity string
	PDFFile       string
	AudioFile     string
	Status        Status
	ErrorMessage  string

	// RepairPDF is set when the PDF was newly stored and repair is enabled;
	// it is cleared once the repair step has run so crash recovery does not
	// repeat it.
	RepairPDF bool

	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the job reached a final state.
func (j Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total        int
	Queued       int
	Transcribing int
	Completed    int
	Errored      int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
