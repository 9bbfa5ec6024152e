package status

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const (
	approvedSelect = `SELECT video_id, 'approved' AS verdict, title, url, approved_at AS decided_at,
        file_path, reason, confidence, metadata_json FROM approved`
	rejectedSelect = `SELECT video_id, 'rejected' AS verdict, title, url, rejected_at AS decided_at,
        NULL AS file_path, rejection_reason AS reason, confidence, metadata_json FROM rejected`
)

const recordQuery = `SELECT * FROM (` + approvedSelect + ` UNION ALL ` + rejectedSelect + `)`

// timeLayout keeps a fixed fraction width so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		videoID    string
		verdict    string
		title      sql.NullString
		url        sql.NullString
		decidedRaw sql.NullString
		filePath   sql.NullString
		reason     sql.NullString
		confidence sql.NullFloat64
		metadata   sql.NullString
	)
	if err := scanner.Scan(
		&videoID,
		&verdict,
		&title,
		&url,
		&decidedRaw,
		&filePath,
		&reason,
		&confidence,
		&metadata,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		VideoID:    videoID,
		Verdict:    Verdict(verdict),
		Title:      title.String,
		URL:        url.String,
		FilePath:   filePath.String,
		Reason:     reason.String,
		Confidence: confidence.Float64,
	}
	if decided, err := parseTimeString(decidedRaw.String); err == nil {
		rec.DecidedAt = decided
	}
	if metadata.Valid && metadata.String != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &meta); err == nil {
			rec.Metadata = meta
		}
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
