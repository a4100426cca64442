package parse

import (
	"strings"
	"time"

	"github.com/swvincent/acronis-summary/model"
)

const (
	errorCodePrefix = "Error code:"
	messagePrefix   = "Message:"
)

// Classify parses one notification body into a status record. The
// outcome is decided by a literal, case-sensitive substring match on
// the summary line; Acronis emails are free text, not a fixed grammar.
// Callers must not pass bodies without a single non-blank line.
func Classify(body string, occurredAt time.Time) model.StatusRecord {
	record := model.StatusRecord{
		Outcome:     model.OutcomeUnknown,
		SummaryLine: SummaryLine(body),
		OccurredAt:  occurredAt,
	}

	switch {
	case strings.Contains(record.SummaryLine, "has succeeded"):
		record.Outcome = model.OutcomeSuccess
	case strings.Contains(record.SummaryLine, "has failed"):
		record.Outcome = model.OutcomeFailure
		record.Errors = ExtractErrors(body)
	}

	return record
}

// SummaryLine returns the last non-blank line of the body with a
// single trailing period removed, or "" if every line is blank.
func SummaryLine(body string) string {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" {
			continue
		}
		return strings.TrimSuffix(line, ".")
	}
	return ""
}

// ExtractErrors scans every line of the body for "Error code:" /
// "Message:" pairs. A Message line pairs with the most recently seen
// Error code line; a code with no following Message line produces no
// entry. Entries are deduplicated by their rendered text, keeping
// first-seen order.
func ExtractErrors(body string) []model.ErrorEntry {
	var (
		entries     []model.ErrorEntry
		seen        = make(map[string]struct{})
		pendingCode string
		havePending bool
	)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, errorCodePrefix):
			pendingCode = line
			havePending = true
		case strings.HasPrefix(line, messagePrefix) && havePending:
			entry := model.ErrorEntry{
				Code:    pendingCode,
				Message: line[len(messagePrefix):],
			}
			key := entry.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			entries = append(entries, entry)
		}
	}

	return entries
}
