package runner

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/swvincent/acronis-summary/mailbox"
	"github.com/swvincent/acronis-summary/model"
	"github.com/swvincent/acronis-summary/parse"
	"github.com/swvincent/acronis-summary/report"
	"github.com/swvincent/acronis-summary/send"
	"github.com/swvincent/acronis-summary/stats"
)

// Options wires the pipeline together.
type Options struct {
	Mailbox   *mailbox.Reader
	Renderer  *report.Renderer
	Sender    *send.Sender
	Collector *stats.Collector
	Logger    *slog.Logger
	From      string
	To        string
	// Now defaults to time.Now; tests inject a fixed clock.
	Now func() time.Time
}

// Runner executes one fetch -> parse -> render -> send pass. Deletes
// staged while fetching only become durable after the summary (or the
// empty-inbox notice) was confirmed delivered.
type Runner struct {
	mailbox   *mailbox.Reader
	renderer  *report.Renderer
	sender    *send.Sender
	collector *stats.Collector
	logger    *slog.Logger
	from      string
	to        string
	now       func() time.Time
}

func New(opts Options) (*Runner, error) {
	if opts.Mailbox == nil {
		return nil, fmt.Errorf("mailbox reader must not be nil")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer must not be nil")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender must not be nil")
	}
	if opts.From == "" || opts.To == "" {
		return nil, fmt.Errorf("from and to addresses must be set")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		mailbox:   opts.Mailbox,
		renderer:  opts.Renderer,
		sender:    opts.Sender,
		collector: opts.Collector,
		logger:    logger,
		from:      opts.From,
		to:        opts.To,
		now:       now,
	}, nil
}

// Run executes one complete pass. Errors are terminal for this run;
// the next scheduled run retries from scratch against an unchanged
// mailbox.
func (r *Runner) Run() error {
	r.logger.Info("run started")

	raws, err := r.mailbox.FetchAndStageDeletes()
	if err != nil {
		// Mailbox read errors are not retried within a run, but any
		// deletes staged before the failure must be rolled back.
		r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
		r.abort(err)
		return fmt.Errorf("fetch mailbox: %w", err)
	}

	// A mailbox holding only messages with unusable bodies yields no
	// raw messages yet has deletes staged, so it must still go through
	// the summary's commit/abort path.
	if len(raws) == 0 && r.mailbox.StagedDeletes() == 0 {
		return r.sendEmptyNotice()
	}

	return r.sendSummary(raws)
}

func (r *Runner) sendEmptyNotice() error {
	// Nothing was staged, so closing here commits nothing.
	if err := r.mailbox.Close(); err != nil {
		r.logger.Warn("closing empty mailbox session", "err", err)
	}

	now := r.now()
	msg := send.Message{
		From:     r.from,
		To:       r.to,
		Subject:  r.renderer.EmptySubject(now),
		Date:     now,
		TextBody: report.EmptyNoticeBody,
	}

	if err := r.sender.Send(msg); err != nil {
		r.record(stats.Event{Stage: stats.StageSend, Type: stats.EventTypeError, Err: err})
		r.logger.Error("could not send backup log empty email", "err", err)
		return err
	}

	r.record(stats.Event{Stage: stats.StageSend, Type: stats.EventTypeDelivered})
	r.logger.Info("backup log empty email sent")
	return nil
}

func (r *Runner) sendSummary(raws []model.RawMessage) error {
	records := make([]model.StatusRecord, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw.Body) == "" {
			r.record(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeSkippedEmpty})
			continue
		}
		records = append(records, parse.Classify(raw.Body, raw.ReceivedAt))
		r.record(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeParsed})
	}

	rep, err := r.renderer.Render(records)
	if err != nil {
		r.abort(err)
		return fmt.Errorf("render report: %w", err)
	}

	now := r.now()
	msg := send.Message{
		From:     r.from,
		To:       r.to,
		Subject:  r.renderer.Subject(now),
		Date:     now,
		TextBody: rep.TextBody,
		HTMLBody: rep.HTMLBody,
	}

	if err := r.sender.Send(msg); err != nil {
		r.record(stats.Event{Stage: stats.StageSend, Type: stats.EventTypeError, Err: err})
		r.logger.Error("could not send backup log summary email", "err", err)
		r.abort(err)
		return err
	}
	r.logger.Debug("summary text body", "body", rep.TextBody)

	if err := r.mailbox.CommitDeletes(); err != nil {
		// The summary went out but the mailbox keeps its messages;
		// the next run will report them again.
		r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
		return fmt.Errorf("commit deletes: %w", err)
	}

	r.record(stats.Event{Stage: stats.StageSend, Type: stats.EventTypeDelivered})
	r.logger.Info("backup log summary email sent", "messages", len(raws), "records", len(records))
	return nil
}

// abort rolls back staged deletes so the next run re-processes the
// same messages.
func (r *Runner) abort(cause error) {
	if err := r.mailbox.AbortDeletes(); err != nil {
		r.logger.Error("aborting staged deletes", "err", err, "cause", cause)
	}
}

func (r *Runner) record(evt stats.Event) {
	if r.collector != nil {
		r.collector.Record(evt)
	}
}
