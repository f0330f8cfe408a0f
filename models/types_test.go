// ABOUTME: Tests for lead data models
// ABOUTME: Validates LeadRecord padding, ordering, and attachment filtering
package models

import (
	"testing"
)

func TestNewLeadRecordPadsShortInput(t *testing.T) {
	rec := NewLeadRecord([]string{"2024-01-01", "2024-01-02"})

	values := rec.Values()
	if len(values) != LeadFieldCount {
		t.Fatalf("expected %d values, got %d", LeadFieldCount, len(values))
	}
	if rec.LeadCreationDate != "2024-01-01" || rec.InquiryDate != "2024-01-02" {
		t.Errorf("unexpected leading fields: %+v", rec)
	}
	for i := 2; i < LeadFieldCount; i++ {
		if values[i] != "" {
			t.Errorf("expected empty field at %d, got %q", i, values[i])
		}
	}
}

func TestNewLeadRecordIgnoresExtraFields(t *testing.T) {
	rec := NewLeadRecord([]string{"1", "2", "3", "4", "5", "6", "7", "8", "9"})

	if rec.SourceName != "7" {
		t.Errorf("expected SourceName 7, got %q", rec.SourceName)
	}
	if len(rec.Values()) != LeadFieldCount {
		t.Errorf("expected %d values", LeadFieldCount)
	}
}

func TestLeadRecordFieldsUseHeaderNames(t *testing.T) {
	rec := NewLeadRecord([]string{"a", "b", "c", "d", "e", "f", "g"})
	fields := rec.Fields()

	if len(fields) != LeadFieldCount {
		t.Fatalf("expected %d fields, got %d", LeadFieldCount, len(fields))
	}
	if fields["CommunityName"] != "c" {
		t.Errorf("expected CommunityName c, got %q", fields["CommunityName"])
	}
	if fields["SourceName"] != "g" {
		t.Errorf("expected SourceName g, got %q", fields["SourceName"])
	}
}

func TestCSVAttachments(t *testing.T) {
	msg := &Message{
		Attachments: []Attachment{
			{Filename: "leads.CSV"},
			{Filename: "report.pdf"},
			{Filename: "daily.csv"},
			{Filename: "csv"},
		},
	}

	got := msg.CSVAttachments()
	if len(got) != 2 {
		t.Fatalf("expected 2 csv attachments, got %d", len(got))
	}
	if got[0].Filename != "leads.CSV" || got[1].Filename != "daily.csv" {
		t.Errorf("unexpected attachments: %+v", got)
	}
}

func TestRecordsToRows(t *testing.T) {
	rows := RecordsToRows([]LeadRecord{
		NewLeadRecord([]string{"1"}),
		NewLeadRecord([]string{"2", "x"}),
	})

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "2" || rows[1][1] != "x" || len(rows[1]) != LeadFieldCount {
		t.Errorf("unexpected row: %v", rows[1])
	}
}
