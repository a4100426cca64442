package stats

import (
	"github.com/pterm/pterm"
)

type Stage string

const (
	StageMailbox Stage = "mailbox"
	StageParse   Stage = "parse"
	StageSend    Stage = "send"
)

type EventType string

const (
	EventTypeFetched      EventType = "fetched"
	EventTypeIgnoredPart  EventType = "ignored_part"
	EventTypeSkippedEmpty EventType = "skipped_empty"
	EventTypeParsed       EventType = "parsed"
	EventTypeSendAttempt  EventType = "send_attempt"
	EventTypeDelivered    EventType = "delivered"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Detail string
	Err    error
}

type Summary struct {
	Fetched      int
	IgnoredParts int
	SkippedEmpty int
	Parsed       int
	SendAttempts int
	Delivered    bool
	Errors       int
	LastError    error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"fetched", s.Fetched,
		"ignoredParts", s.IgnoredParts,
		"skippedEmpty", s.SkippedEmpty,
		"parsed", s.Parsed,
		"sendAttempts", s.SendAttempts,
		"delivered", s.Delivered,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// PrettyPrint writes the run summary to the console. Used by the CLI
// when it runs attached to a terminal.
func (s Summary) PrettyPrint() {
	pterm.DefaultSection.Println("Run Summary")
	pterm.Info.Printf("Messages fetched: %d\n", s.Fetched)
	pterm.Info.Printf("Records parsed: %d\n", s.Parsed)
	pterm.Info.Printf("Empty bodies skipped: %d\n", s.SkippedEmpty)
	pterm.Info.Printf("Non-text parts ignored: %d\n", s.IgnoredParts)
	pterm.Info.Printf("Send attempts: %d\n", s.SendAttempts)
	if s.Delivered {
		pterm.Success.Println("Summary email delivered")
	} else {
		pterm.Warning.Println("Summary email not delivered")
	}
	if s.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", s.LastError)
	}
}

// Collector accumulates run counters. The pipeline is a synchronous
// run-to-completion batch job, so no locking is needed.
type Collector struct {
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(evt Event) {
	switch evt.Type {
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeIgnoredPart:
		c.summary.IgnoredParts++
	case EventTypeSkippedEmpty:
		c.summary.SkippedEmpty++
	case EventTypeParsed:
		c.summary.Parsed++
	case EventTypeSendAttempt:
		c.summary.SendAttempts++
	case EventTypeDelivered:
		c.summary.Delivered = true
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	return c.summary
}
