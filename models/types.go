// ABOUTME: Data models for lead ingestion and sync runs
// ABOUTME: Defines LeadRecord, mail Message/Attachment, SearchCriteria, and Run structs
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadFieldCount is the fixed width of a normalized lead row.
const LeadFieldCount = 7

// LeadHeaders are the column names of a normalized lead row, in positional order.
var LeadHeaders = []string{
	"LeadCreationDate",
	"InquiryDate",
	"CommunityName",
	"Classification",
	"TotalLeads",
	"SubSourceName",
	"SourceName",
}

// LeadRecord is one normalized lead row. All seven fields are always present;
// a missing source value is the empty string.
type LeadRecord struct {
	LeadCreationDate string `json:"lead_creation_date"`
	InquiryDate      string `json:"inquiry_date"`
	CommunityName    string `json:"community_name"`
	Classification   string `json:"classification"`
	TotalLeads       string `json:"total_leads"`
	SubSourceName    string `json:"sub_source_name"`
	SourceName       string `json:"source_name"`
}

// NewLeadRecord maps fields positionally. Short input is padded with empty
// strings, extra fields past the seventh are ignored.
func NewLeadRecord(fields []string) LeadRecord {
	var f [LeadFieldCount]string
	copy(f[:], fields)

	return LeadRecord{
		LeadCreationDate: f[0],
		InquiryDate:      f[1],
		CommunityName:    f[2],
		Classification:   f[3],
		TotalLeads:       f[4],
		SubSourceName:    f[5],
		SourceName:       f[6],
	}
}

// Values returns the record as an ordered row of cells.
func (r LeadRecord) Values() []string {
	return []string{
		r.LeadCreationDate,
		r.InquiryDate,
		r.CommunityName,
		r.Classification,
		r.TotalLeads,
		r.SubSourceName,
		r.SourceName,
	}
}

// Fields returns the record keyed by header name.
func (r LeadRecord) Fields() map[string]string {
	values := r.Values()
	out := make(map[string]string, LeadFieldCount)
	for i, name := range LeadHeaders {
		out[name] = values[i]
	}
	return out
}

// RecordsToRows converts records into sheet rows.
func RecordsToRows(records []LeadRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.Values())
	}
	return rows
}

// SearchCriteria filters the mailbox for candidate messages.
type SearchCriteria struct {
	From          string    `json:"from,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Label         string    `json:"label,omitempty"`
	HasAttachment bool      `json:"has_attachment"`
	Since         time.Time `json:"since,omitempty"`
}

type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// IsCSV reports whether the attachment is named like a CSV file.
func (a Attachment) IsCSV() bool {
	return strings.HasSuffix(strings.ToLower(a.Filename), ".csv")
}

type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Subject     string       `json:"subject"`
	Date        time.Time    `json:"date"`
	BodyText    string       `json:"body_text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// CSVAttachments returns the attachments that should be ingested.
func (m *Message) CSVAttachments() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if a.IsCSV() {
			out = append(out, a)
		}
	}
	return out
}

// Run status constants.
const (
	RunStatusRunning  = "running"
	RunStatusOK       = "ok"
	RunStatusNoop     = "noop"
	RunStatusFallback = "fallback"
	RunStatusFailed   = "failed"
)

// Run trigger constants.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerMCP      = "mcp"
	TriggerTUI      = "tui"
)

// Run is one executed pipeline cycle.
type Run struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	MessagesSeen    int        `json:"messages_seen"`
	RecordsIngested int        `json:"records_ingested"`
	RowsSkipped     int        `json:"rows_skipped"`
	RowsAppended    int        `json:"rows_appended"`
	Duplicates      int        `json:"duplicates"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

type SyncLog struct {
	ID            uuid.UUID `json:"id"`
	SourceService string    `json:"source_service"`
	SourceID      string    `json:"source_id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	ImportedAt    time.Time `json:"imported_at"`
	Metadata      string    `json:"metadata,omitempty"`
}
