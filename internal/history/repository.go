// Package history records every node restart attempt in the restart_history
// table so operators can see what was requested, by whom and how it ended.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mfersafe-core/internal/supervisor"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Record is one row of restart history.
type Record struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Source      string    `json:"source"`
	Success     bool      `json:"success"`
	RolledBack  bool      `json:"rolled_back"`
	OldPID      int       `json:"old_pid,omitempty"`
	NewPID      int       `json:"new_pid,omitempty"`
	Args        []string  `json:"args"`
	Error       string    `json:"error,omitempty"`
}

// DurationMS returns how long the attempt took in milliseconds.
func (r Record) DurationMS() int64 {
	return r.FinishedAt.Sub(r.RequestedAt).Milliseconds()
}

// FromAttempt converts a finished restart attempt into a record.
// Kill and persistence problems are appended to the error text.
func FromAttempt(a supervisor.Attempt) Record {
	rec := Record{
		RequestedAt: a.RequestedAt.UTC(),
		FinishedAt:  a.FinishedAt.UTC(),
		Source:      a.Source,
		Success:     a.Success,
		RolledBack:  a.RolledBack,
		OldPID:      a.OldPID,
		NewPID:      a.NewPID,
		Args:        a.Config.BuildArgs(),
	}

	var problems []error
	if a.Err != nil {
		problems = append(problems, a.Err)
	}
	if a.KillErr != nil {
		problems = append(problems, fmt.Errorf("stop: %w", a.KillErr))
	}
	if a.SaveErr != nil {
		problems = append(problems, fmt.Errorf("persist: %w", a.SaveErr))
	}
	if err := errors.Join(problems...); err != nil {
		rec.Error = strings.ReplaceAll(err.Error(), "\n", "; ")
	}

	return rec
}

// Filter controls which records List returns.
type Filter struct {
	Source     string // optional: api, mqtt
	FailedOnly bool   // only unsuccessful attempts
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains one page of records.
type ListResult struct {
	Restarts []Record `json:"restarts"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

// Repository defines restart history operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores restart history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new restart history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a record. ID and timestamps are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "rst-" + uuid.NewString()[:8]
	}
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = time.Now().UTC()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = rec.RequestedAt
	}
	if rec.Source == "" {
		rec.Source = supervisor.SourceUnknown
	}

	args := rec.Args
	if args == nil {
		args = []string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshalling restart args: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO restart_history
		   (id, requested_at, finished_at, source, success, rolled_back, old_pid, new_pid, args, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.RequestedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.Source,
		boolToInt(rec.Success),
		boolToInt(rec.RolledBack),
		nullableInt(rec.OldPID),
		nullableInt(rec.NewPID),
		string(argsJSON),
		nullableString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting restart record: %w", err)
	}

	return nil
}

// List returns records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.FailedOnly {
		conditions = append(conditions, "success = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM restart_history %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting restart records: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, requested_at, finished_at, source, success, rolled_back, old_pid, new_pid, args, error
		 FROM restart_history %s ORDER BY requested_at DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying restart records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating restart records: %w", err)
	}

	return &ListResult{
		Restarts: records,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                     Record
		requestedAt, finishedAt string
		success, rolledBack     int
		oldPID, newPID          sql.NullInt64
		argsJSON                string
		errText                 sql.NullString
	)

	if err := rows.Scan(&rec.ID, &requestedAt, &finishedAt, &rec.Source,
		&success, &rolledBack, &oldPID, &newPID, &argsJSON, &errText); err != nil {
		return Record{}, fmt.Errorf("scanning restart record: %w", err)
	}

	var err error
	if rec.RequestedAt, err = time.Parse(timeLayout, requestedAt); err != nil {
		return Record{}, fmt.Errorf("parsing requested_at %q: %w", requestedAt, err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return Record{}, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
	}

	rec.Success = success != 0
	rec.RolledBack = rolledBack != 0
	rec.OldPID = int(oldPID.Int64)
	rec.NewPID = int(newPID.Int64)
	if errText.Valid {
		rec.Error = errText.String
	}
	if json.Unmarshal([]byte(argsJSON), &rec.Args) != nil || rec.Args == nil {
		rec.Args = []string{}
	}

	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt returns nil for zero so missing PIDs stay NULL.
func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
