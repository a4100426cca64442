package parse

import (
	"reflect"
	"testing"
	"time"

	"github.com/swvincent/acronis-summary/model"
)

var testTime = time.Date(2024, 3, 14, 9, 5, 0, 0, time.UTC)

func TestClassify_Success(t *testing.T) {
	body := "Machine: SERVER01\n\nBackup details here.\n\nBackup task 'Nightly' has succeeded.\n"

	record := Classify(body, testTime)

	if record.Outcome != model.OutcomeSuccess {
		t.Errorf("Outcome = %s, want %s", record.Outcome, model.OutcomeSuccess)
	}
	if record.SummaryLine != "Backup task 'Nightly' has succeeded" {
		t.Errorf("SummaryLine = %q", record.SummaryLine)
	}
	if len(record.Errors) != 0 {
		t.Errorf("expected no errors for a success, got %d", len(record.Errors))
	}
	if !record.OccurredAt.Equal(testTime) {
		t.Errorf("OccurredAt = %v, want %v", record.OccurredAt, testTime)
	}
}

func TestClassify_SuccessIgnoresErrorLinesElsewhere(t *testing.T) {
	body := "Error code: 5\nMessage: stale warning\nBackup task 'Nightly' has succeeded.\n"

	record := Classify(body, testTime)

	if record.Outcome != model.OutcomeSuccess {
		t.Errorf("Outcome = %s, want %s", record.Outcome, model.OutcomeSuccess)
	}
	if len(record.Errors) != 0 {
		t.Errorf("success records must not carry errors, got %d", len(record.Errors))
	}
}

func TestClassify_Failure(t *testing.T) {
	body := "Details follow.\nError code: 5\nMessage: Disk full\nBackup task 'Nightly' has failed.\n"

	record := Classify(body, testTime)

	if record.Outcome != model.OutcomeFailure {
		t.Fatalf("Outcome = %s, want %s", record.Outcome, model.OutcomeFailure)
	}
	want := []model.ErrorEntry{{Code: "Error code: 5", Message: " Disk full"}}
	if !reflect.DeepEqual(record.Errors, want) {
		t.Errorf("Errors = %v, want %v", record.Errors, want)
	}
}

func TestClassify_Unknown(t *testing.T) {
	record := Classify("Something unexpected happened\n", testTime)

	if record.Outcome != model.OutcomeUnknown {
		t.Errorf("Outcome = %s, want %s", record.Outcome, model.OutcomeUnknown)
	}
	if record.SummaryLine != "Something unexpected happened" {
		t.Errorf("SummaryLine = %q", record.SummaryLine)
	}
}

func TestSummaryLine(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"last non-blank line wins", "first\nsecond\n\n\n", "second"},
		{"trailing period stripped", "task has succeeded.\n", "task has succeeded"},
		{"only one period stripped", "done..\n", "done."},
		{"crlf line endings", "first\r\nlast line.\r\n", "last line"},
		{"all blank", "\n\n\n", ""},
		{"empty body", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummaryLine(tt.body); got != tt.want {
				t.Errorf("SummaryLine(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestExtractErrors_Dedup(t *testing.T) {
	body := "Error code: 5\nMessage: Disk full\n" +
		"Error code: 7\nMessage: Timeout\n" +
		"Error code: 5\nMessage: Disk full\n"

	entries := ExtractErrors(body)

	want := []model.ErrorEntry{
		{Code: "Error code: 5", Message: " Disk full"},
		{Code: "Error code: 7", Message: " Timeout"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}
}

func TestExtractErrors_CodeWithoutMessage(t *testing.T) {
	entries := ExtractErrors("Error code: 5\nsomething else\n")
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestExtractErrors_MessageWithoutCode(t *testing.T) {
	entries := ExtractErrors("Message: orphaned\n")
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestExtractErrors_NonAdjacentPair(t *testing.T) {
	body := "Error code: 9\nsome interleaved detail\nMessage: Backup aborted\n"

	entries := ExtractErrors(body)

	want := []model.ErrorEntry{{Code: "Error code: 9", Message: " Backup aborted"}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}
}

func TestExtractErrors_Idempotent(t *testing.T) {
	body := "Error code: 1\nMessage: a\nError code: 2\nMessage: b\n"

	first := ExtractErrors(body)
	second := ExtractErrors(body)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not stable: %v vs %v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("expected 2 entries, got %d", len(first))
	}
}
