// ABOUTME: One sync cycle: search mail, ingest CSV attachments, merge into the sheet, fall back to export
// ABOUTME: Records each cycle as a run row and each handled message in the sync log
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/ingest"
	"github.com/harperreed/leadsync/merge"
	"github.com/harperreed/leadsync/metrics"
	"github.com/harperreed/leadsync/models"
)

// maxActivityBody bounds the body text written to the activity sheet.
const maxActivityBody = 500

// MailSource finds and downloads candidate messages.
type MailSource interface {
	Search(ctx context.Context, criteria models.SearchCriteria) ([]string, error)
	FetchMessage(ctx context.Context, id string) (*models.Message, error)
}

// Exporter stores a flat file and returns where it went.
type Exporter interface {
	Export(ctx context.Context, name string, data []byte) (string, error)
}

// Options wires a Pipeline. DB, Source, Ingestor, Merger and Criteria are required.
type Options struct {
	DB       *sql.DB
	Source   MailSource
	Ingestor *ingest.Ingestor
	Merger   *merge.Merger
	Criteria func(now time.Time) models.SearchCriteria

	// Exporters receive the flat CSV when a merge fails.
	Exporters []Exporter
	// Archive, when set, receives each raw attachment before processing.
	Archive Exporter

	// Activity and ActivityRange enable one log row per processed message.
	Activity      merge.Destination
	ActivityRange string

	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Pipeline runs sync cycles. It does not consult the schedule gate.
type Pipeline struct {
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Summary describes one finished cycle.
type Summary struct {
	RunID            string        `json:"run_id"`
	Trigger          string        `json:"trigger"`
	Status           string        `json:"status"`
	MessagesFound    int           `json:"messages_found"`
	MessagesSeen     int           `json:"messages_seen"`
	AlreadyProcessed int           `json:"already_processed"`
	FetchFailures    int           `json:"fetch_failures"`
	Attachments      int           `json:"attachments"`
	RecordsIngested  int           `json:"records_ingested"`
	RowsSkipped      int           `json:"rows_skipped"`
	RowsAppended     int           `json:"rows_appended"`
	Duplicates       int           `json:"duplicates"`
	MergeFailures    int           `json:"merge_failures"`
	Unhandled        int           `json:"unhandled"`
	Exports          []string      `json:"exports,omitempty"`
	Errors           []string      `json:"errors,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	var missing []string
	if opts.DB == nil {
		missing = append(missing, "database")
	}
	if opts.Source == nil {
		missing = append(missing, "mail source")
	}
	if opts.Ingestor == nil {
		missing = append(missing, "ingestor")
	}
	if opts.Merger == nil {
		missing = append(missing, "merger")
	}
	if opts.Criteria == nil {
		missing = append(missing, "search criteria")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline is missing: %s", strings.Join(missing, ", "))
	}

	p := &Pipeline{
		opts:    opts,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.logger = p.logger.Named("pipeline")
	return p, nil
}

// RunCycle executes one cycle. The returned error covers failures that stop
// the cycle outright (run bookkeeping, mail search); per-message and
// per-attachment problems are reported in the Summary and the run row.
func (p *Pipeline) RunCycle(ctx context.Context, trigger string) (Summary, error) {
	started := p.now()
	run := &models.Run{
		ID:        ulid.Make().String(),
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: started.UTC(),
	}
	summary := Summary{RunID: run.ID, Trigger: trigger}

	if err := db.CreateRun(p.opts.DB, run); err != nil {
		return summary, err
	}

	log := p.logger.With(zap.String("run_id", run.ID), zap.String("trigger", trigger))
	log.Info("starting sync cycle")

	ids, err := p.opts.Source.Search(ctx, p.opts.Criteria(started))
	if err != nil {
		err = fmt.Errorf("failed to search mail: %w", err)
		summary.Errors = append(summary.Errors, err.Error())
		p.finish(run, &summary, started, models.RunStatusFailed)
		log.Error("sync cycle failed", zap.Error(err))
		return summary, err
	}
	summary.MessagesFound = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			p.finish(run, &summary, started, models.RunStatusFailed)
			return summary, err
		}
		p.processMessage(ctx, log, run.ID, id, &summary)
	}

	p.finish(run, &summary, started, cycleStatus(summary))
	log.Info("sync cycle finished",
		zap.String("status", summary.Status),
		zap.Int("messages", summary.MessagesSeen),
		zap.Int("records", summary.RecordsIngested),
		zap.Int("appended", summary.RowsAppended),
		zap.Int("duplicates", summary.Duplicates))
	return summary, nil
}

func cycleStatus(s Summary) string {
	switch {
	case s.Unhandled > 0 || s.FetchFailures > 0:
		return models.RunStatusFailed
	case s.MergeFailures > 0:
		return models.RunStatusFallback
	case s.RecordsIngested > 0:
		return models.RunStatusOK
	default:
		return models.RunStatusNoop
	}
}

func (p *Pipeline) finish(run *models.Run, s *Summary, started time.Time, status string) {
	s.Status = status
	s.Duration = p.now().Sub(started)

	run.Status = status
	run.MessagesSeen = s.MessagesSeen
	run.RecordsIngested = s.RecordsIngested
	run.RowsSkipped = s.RowsSkipped
	run.RowsAppended = s.RowsAppended
	run.Duplicates = s.Duplicates
	run.ErrorMessage = strings.Join(s.Errors, "; ")

	if err := db.FinishRun(p.opts.DB, run); err != nil {
		p.logger.Error("failed to record run", zap.String("run_id", run.ID), zap.Error(err))
	}
	p.metrics.ObserveCycle(status, s.Duration)
}

func (p *Pipeline) processMessage(ctx context.Context, log *zap.Logger, runID, id string, s *Summary) {
	done, err := db.CheckSyncLogExists(p.opts.DB, db.ServiceMail, id)
	if err != nil {
		log.Warn("failed to check sync log", zap.String("message_id", id), zap.Error(err))
	}
	if done {
		s.AlreadyProcessed++
		log.Debug("skipping processed message", zap.String("message_id", id))
		return
	}

	msg, err := p.opts.Source.FetchMessage(ctx, id)
	if err != nil {
		s.FetchFailures++
		s.Errors = append(s.Errors, fmt.Sprintf("message %s: %v", id, err))
		log.Warn("failed to fetch message", zap.String("message_id", id), zap.Error(err))
		return
	}
	s.MessagesSeen++

	log = log.With(zap.String("message_id", id), zap.String("subject", msg.Subject))
	p.recordActivity(ctx, log, msg)

	csvs := msg.CSVAttachments()
	if len(csvs) == 0 {
		log.Info("message has no csv attachments")
	}

	handled := true
	records := 0
	for _, att := range csvs {
		s.Attachments++
		n, ok := p.processAttachment(ctx, log, att, s)
		records += n
		if !ok {
			handled = false
		}
	}

	if !handled {
		s.Unhandled++
		return
	}

	meta, err := json.Marshal(map[string]interface{}{
		"from":        msg.From,
		"subject":     msg.Subject,
		"attachments": len(csvs),
		"records":     records,
	})
	if err != nil {
		log.Warn("failed to encode sync log metadata", zap.Error(err))
		meta = []byte("{}")
	}
	if err := db.CreateSyncLog(p.opts.DB, db.ServiceMail, id, "message", runID, string(meta)); err != nil {
		log.Warn("failed to record processed message", zap.Error(err))
	}
}

// processAttachment ingests one CSV and merges it, exporting a flat file
// when the merge fails. It reports the record count and whether the records
// ended up somewhere.
func (p *Pipeline) processAttachment(ctx context.Context, log *zap.Logger, att models.Attachment, s *Summary) (int, bool) {
	log = log.With(zap.String("attachment", att.Filename))
	now := p.now()

	if p.opts.Archive != nil {
		if loc, err := p.opts.Archive.Export(ctx, ingest.ArchiveFilename(now), att.Data); err != nil {
			log.Warn("failed to archive attachment", zap.Error(err))
		} else {
			log.Info("archived attachment", zap.String("location", loc))
		}
	}

	res := p.opts.Ingestor.Ingest(att.Data)
	s.RecordsIngested += len(res.Records)
	s.RowsSkipped += res.Skipped
	p.metrics.ObserveIngest(len(res.Records), res.Skipped)

	if len(res.Records) == 0 {
		log.Info("no lead records in attachment", zap.Int("skipped", res.Skipped))
		return 0, true
	}

	mr := p.opts.Merger.Merge(ctx, models.RecordsToRows(res.Records))
	s.RowsAppended += mr.Appended
	s.Duplicates += mr.Duplicates
	p.metrics.ObserveMerge(mr.Appended, mr.Duplicates, mr.OK())

	if mr.OK() {
		return len(res.Records), true
	}

	s.MergeFailures++
	s.Errors = append(s.Errors, mr.Err.Error())
	log.Warn("merge failed, exporting flat file", zap.Error(mr.Err))

	return len(res.Records), p.fallback(ctx, log, res.Records, now, s)
}

func (p *Pipeline) fallback(ctx context.Context, log *zap.Logger, records []models.LeadRecord, now time.Time, s *Summary) bool {
	data, err := ingest.RenderCSV(records)
	if err != nil {
		s.Errors = append(s.Errors, err.Error())
		log.Error("failed to render csv", zap.Error(err))
		return false
	}

	name := ingest.OutputFilename(now)
	exported := false
	for _, exp := range p.opts.Exporters {
		loc, err := exp.Export(ctx, name, data)
		if err != nil {
			s.Errors = append(s.Errors, fmt.Sprintf("export %s: %v", name, err))
			log.Error("failed to export flat file", zap.String("file", name), zap.Error(err))
			continue
		}
		exported = true
		s.Exports = append(s.Exports, loc)
		log.Info("exported flat file", zap.String("location", loc))
	}

	if !exported && len(p.opts.Exporters) == 0 {
		s.Errors = append(s.Errors, "no exporter configured for fallback")
	}
	return exported
}

func (p *Pipeline) recordActivity(ctx context.Context, log *zap.Logger, msg *models.Message) {
	if p.opts.Activity == nil || p.opts.ActivityRange == "" {
		return
	}

	row := []string{
		p.now().Format("2006-01-02 15:04:05"),
		msg.From,
		msg.Subject,
		clip(msg.BodyText, maxActivityBody),
		"Processed",
	}
	if err := p.opts.Activity.AppendRows(ctx, p.opts.ActivityRange, [][]string{row}); err != nil {
		log.Warn("failed to record activity", zap.Error(err))
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
