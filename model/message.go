package model

import "time"

// Outcome classifies one backup notification.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// RawMessage is the decoded plain-text body of one mailbox message.
type RawMessage struct {
	Body       string
	ReceivedAt time.Time
}

// ErrorEntry is one error extracted from a failed backup notification.
type ErrorEntry struct {
	Code    string
	Message string
}

// String renders the entry the way it appears in the report. Two
// entries with the same rendered text are considered duplicates.
func (e ErrorEntry) String() string {
	return e.Code + ":" + e.Message
}

// StatusRecord is the classified result of one notification body.
// Errors is empty unless Outcome is OutcomeFailure.
type StatusRecord struct {
	Outcome     Outcome
	SummaryLine string
	OccurredAt  time.Time
	Errors      []ErrorEntry
}

// Report is the rendered summary for one run.
type Report struct {
	HTMLBody string
	TextBody string
}
