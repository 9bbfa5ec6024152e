package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"subguard/internal/services"
)

// Verdict is the outcome stored for a clip.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// ParseVerdict maps a user-facing filter value onto a Verdict. The empty
// string means "any" and is returned unchanged.
func ParseVerdict(value string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(value))); v {
	case VerdictApproved, VerdictRejected, "":
		return v, nil
	default:
		return "", fmt.Errorf("unknown verdict %q (want approved or rejected)", value)
	}
}

// Record is one live ledger entry.
type Record struct {
	VideoID    string         `json:"video_id"`
	Verdict    Verdict        `json:"verdict"`
	Title      string         `json:"title,omitempty"`
	URL        string         `json:"url,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Confidence float64        `json:"confidence"`
	FilePath   string         `json:"file_path,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DecidedAt  time.Time      `json:"decided_at"`
}

// Approval is the input for AddApproved.
type Approval struct {
	VideoID    string
	Title      string
	URL        string
	FilePath   string
	Reason     string
	Confidence float64
	Metadata   map[string]any
}

// Rejection is the input for AddRejected.
type Rejection struct {
	VideoID    string
	Title      string
	URL        string
	Reason     string
	Confidence float64
	Metadata   map[string]any
}

// Stats counts live records per verdict.
type Stats struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Total returns the number of judged clips.
func (s Stats) Total() int { return s.Approved + s.Rejected }

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateVideoID rejects ids that cannot be embedded safely in a file name.
// The processing marker is reserved for in-flight validation files.
func ValidateVideoID(id string) error {
	switch {
	case id == "":
		return services.Wrap(services.ErrValidation, "status", "video id", "video id is required", nil)
	case !videoIDPattern.MatchString(id):
		return services.Wrap(services.ErrValidation, "status", "video id",
			fmt.Sprintf("video id %q may only contain letters, digits, '.', '_' and '-'", id), nil)
	case strings.Contains(id, ProcessingMarker):
		return services.Wrap(services.ErrValidation, "status", "video id",
			fmt.Sprintf("video id %q contains the reserved marker %s", id, ProcessingMarker), nil)
	}
	return nil
}

// ProcessingMarker separates job id and video id in validation-stage file
// names.
const ProcessingMarker = "_PROCESSING_"

// AddApproved upserts an approved record and drops any rejected record for
// the same clip in one transaction.
func (s *Store) AddApproved(ctx context.Context, a Approval) (Record, error) {
	if err := ValidateVideoID(a.VideoID); err != nil {
		return Record{}, err
	}
	meta, err := encodeMetadata(a.Metadata)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	err = s.writeTx(ctx, "add approved", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rejected WHERE video_id = ?`, a.VideoID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO approved
            (video_id, title, url, approved_at, file_path, reason, confidence, metadata_json)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(video_id) DO UPDATE SET
                title = excluded.title,
                url = excluded.url,
                approved_at = excluded.approved_at,
                file_path = excluded.file_path,
                reason = excluded.reason,
                confidence = excluded.confidence,
                metadata_json = excluded.metadata_json`,
			a.VideoID,
			nullableString(a.Title),
			nullableString(a.URL),
			now.Format(timeLayout),
			nullableString(a.FilePath),
			nullableString(a.Reason),
			a.Confidence,
			meta,
		)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return Record{
		VideoID:    a.VideoID,
		Verdict:    VerdictApproved,
		Title:      a.Title,
		URL:        a.URL,
		Reason:     a.Reason,
		Confidence: a.Confidence,
		FilePath:   a.FilePath,
		Metadata:   a.Metadata,
		DecidedAt:  now,
	}, nil
}

// AddRejected upserts a rejected record and drops any approved record for
// the same clip in one transaction.
func (s *Store) AddRejected(ctx context.Context, r Rejection) (Record, error) {
	if err := ValidateVideoID(r.VideoID); err != nil {
		return Record{}, err
	}
	meta, err := encodeMetadata(r.Metadata)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	err = s.writeTx(ctx, "add rejected", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM approved WHERE video_id = ?`, r.VideoID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO rejected
            (video_id, title, url, rejected_at, rejection_reason, confidence, metadata_json)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(video_id) DO UPDATE SET
                title = excluded.title,
                url = excluded.url,
                rejected_at = excluded.rejected_at,
                rejection_reason = excluded.rejection_reason,
                confidence = excluded.confidence,
                metadata_json = excluded.metadata_json`,
			r.VideoID,
			nullableString(r.Title),
			nullableString(r.URL),
			now.Format(timeLayout),
			nullableString(r.Reason),
			r.Confidence,
			meta,
		)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return Record{
		VideoID:    r.VideoID,
		Verdict:    VerdictRejected,
		Title:      r.Title,
		URL:        r.URL,
		Reason:     r.Reason,
		Confidence: r.Confidence,
		Metadata:   r.Metadata,
		DecidedAt:  now,
	}, nil
}

// IsApproved reports whether videoID has a live approved record.
func (s *Store) IsApproved(ctx context.Context, videoID string) (bool, error) {
	return s.exists(ctx, "approved", videoID)
}

// IsRejected reports whether videoID has a live rejected record.
func (s *Store) IsRejected(ctx context.Context, videoID string) (bool, error) {
	return s.exists(ctx, "rejected", videoID)
}

func (s *Store) exists(ctx context.Context, table, videoID string) (bool, error) {
	var found int
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM "+table+" WHERE video_id = ?", videoID,
		).Scan(&found)
	})
	if err != nil {
		return false, services.Wrap(services.ErrStore, "status", "lookup "+table, "", err)
	}
	return found > 0, nil
}

// Lookup returns the live record for videoID, or nil when the clip has not
// been judged.
func (s *Store) Lookup(ctx context.Context, videoID string) (*Record, error) {
	var rec *Record
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, recordQuery+` WHERE video_id = ?`, videoID)
		r, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			rec = nil
			return nil
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "status", "lookup", "", err)
	}
	return rec, nil
}

// ListOptions filters List.
type ListOptions struct {
	Verdict Verdict
	// Limit of zero returns every record.
	Limit int
}

// List returns live records, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query, args := listQuery(opts)
	var records []Record
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "status", "list", "", err)
	}
	return records, nil
}

func listQuery(opts ListOptions) (string, []any) {
	var (
		parts []string
		args  []any
	)
	if opts.Verdict != VerdictRejected {
		parts = append(parts, approvedSelect)
	}
	if opts.Verdict != VerdictApproved {
		parts = append(parts, rejectedSelect)
	}
	query := "SELECT * FROM (" + strings.Join(parts, " UNION ALL ") + ") ORDER BY decided_at DESC, video_id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	return query, args
}

// Stats counts live records per verdict.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(1) FROM approved), (SELECT COUNT(1) FROM rejected)`,
		).Scan(&stats.Approved, &stats.Rejected)
	})
	if err != nil {
		return Stats{}, services.Wrap(services.ErrStore, "status", "stats", "", err)
	}
	return stats, nil
}

// Remove forgets any verdict for videoID so the clip can be judged again. It
// reports whether a record existed.
func (s *Store) Remove(ctx context.Context, videoID string) (bool, error) {
	var removed int64
	err := s.writeTx(ctx, "remove", func(ctx context.Context, tx *sql.Tx) error {
		removed = 0
		for _, table := range []string{"approved", "rejected"} {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE video_id = ?", videoID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func encodeMetadata(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "status", "encode metadata", "", err)
	}
	return string(data), nil
}
