package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"

	"github.com/swvincent/acronis-summary/model"
)

// timeLayout matches the format the notification recipients are used
// to: no zero-padding on month/day, 12-hour clock with AM/PM.
const timeLayout = "Mon, 1/2/2006 at 03:04 PM"

const (
	colorSuccess = "#006400"
	colorFailure = "#FF0000"
	colorUnknown = "#000000"
)

// EmptyNoticeBody is the body of the notice sent when the backup log
// inbox had no messages (in case it shouldn't be empty).
const EmptyNoticeBody = "The backup log inbox is empty."

// Renderer turns an ordered sequence of status records into a report.
// Location controls how timestamps are displayed; nil means the local
// time zone.
type Renderer struct {
	Location *time.Location
}

// Render builds the HTML report and derives the plain-text variant
// from it. Records keep their input order; a record with an empty
// summary line contributes nothing but never breaks later items.
func (r *Renderer) Render(records []model.StatusRecord) (model.Report, error) {
	var b strings.Builder
	b.WriteString("<html><head></head><body><ol>")

	for _, record := range records {
		if record.SummaryLine == "" {
			continue
		}
		fmt.Fprintf(&b, `<li style="color:%s">%s on %s%s</li>`,
			itemColor(record.Outcome),
			record.SummaryLine,
			record.OccurredAt.In(r.location()).Format(timeLayout),
			errorList(record),
		)
	}

	b.WriteString("</ol></body></html>")
	html := b.String()

	text, err := html2text.FromString(html)
	if err != nil {
		return model.Report{}, fmt.Errorf("derive text body: %w", err)
	}

	return model.Report{HTMLBody: html, TextBody: text}, nil
}

// Subject returns the summary subject line stamped with the run's
// current time, not any message's time.
func (r *Renderer) Subject(now time.Time) string {
	return "Backup Log Summary as of " + now.In(r.location()).Format(timeLayout)
}

// EmptySubject returns the subject for the empty-inbox notice.
func (r *Renderer) EmptySubject(now time.Time) string {
	return "Backup Log is empty as of " + now.In(r.location()).Format(timeLayout)
}

func (r *Renderer) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func itemColor(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomeSuccess:
		return colorSuccess
	case model.OutcomeFailure:
		return colorFailure
	default:
		return colorUnknown
	}
}

// errorList renders the nested list of error entries for failures.
func errorList(record model.StatusRecord) string {
	if record.Outcome != model.OutcomeFailure || len(record.Errors) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<ul>")
	for _, entry := range record.Errors {
		b.WriteString("<li>")
		b.WriteString(entry.String())
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
