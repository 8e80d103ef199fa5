package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wildcut/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the jobs database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "jobs.db"))
}

// OpenPath opens the jobs database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Create inserts a new pending job and returns the stored record.
func (s *Store) Create(ctx context.Context, jobType Type, camera string, args Arguments) (*Job, error) {
	if camera == "" {
		return nil, errors.New("camera is required")
	}
	if args == nil {
		var err error
		if args, err = DecodeArguments(jobType, nil); err != nil {
			return nil, err
		}
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s arguments: %w", jobType, err)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, type, status, camera, arguments_json, created_at,
            progress_phase, progress_percent, progress_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(jobType),
		string(StatusPending),
		camera,
		string(argsJSON),
		now.Format(time.RFC3339Nano),
		nil,
		0.0,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Missing jobs yield (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Filter narrows a job listing. Zero values match everything.
type Filter struct {
	Status Status
	Camera string
	Type   Type
	Limit  int
}

// List returns jobs matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Camera != "" {
		clauses = append(clauses, "camera = ?")
		args = append(args, filter.Camera)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextPending returns the oldest pending job, or nil when the queue is empty.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		string(StatusPending),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Transition moves a job to the next status, enforcing the lifecycle rules,
// and applies the matching bookkeeping columns.
func (s *Store) Transition(ctx context.Context, id string, next Status, errorMessage string) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if !job.Status.CanTransition(next) {
		return nil, fmt.Errorf("job %s cannot move from %s to %s", id, job.Status, next)
	}

	now := time.Now().UTC()
	switch next {
	case StatusRunning:
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, started_at = ?, error_message = NULL WHERE id = ?`,
			string(next), now.Format(time.RFC3339Nano), id,
		)
	case StatusCompleted, StatusFailed, StatusCancelled:
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, completed_at = ?, error_message = ?, pid = NULL WHERE id = ?`,
			string(next), now.Format(time.RFC3339Nano), nullableString(errorMessage), id,
		)
	default:
		return nil, fmt.Errorf("unsupported transition target %s", next)
	}
	if err != nil {
		return nil, fmt.Errorf("transition job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// UpdateProgress persists the latest progress snapshot.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET progress_phase = ?, progress_percent = ?, progress_message = ? WHERE id = ?`,
		nullableString(progress.Phase),
		progress.Percent,
		nullableString(progress.Message),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetPID records the transcoder process id for a running job.
func (s *Store) SetPID(ctx context.Context, id string, pid int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET pid = ? WHERE id = ?`, pid, id); err != nil {
		return fmt.Errorf("set pid: %w", err)
	}
	return nil
}

// SetLogFile records the per-job log path.
func (s *Store) SetLogFile(ctx context.Context, id, path string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET log_file = ? WHERE id = ?`, nullableString(path), id); err != nil {
		return fmt.Errorf("set log file: %w", err)
	}
	return nil
}

// SetOutputFile records the rendered output path.
func (s *Store) SetOutputFile(ctx context.Context, id, path string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET output_file = ? WHERE id = ?`, nullableString(path), id); err != nil {
		return fmt.Errorf("set output file: %w", err)
	}
	return nil
}

// Retry clones a terminal job into a fresh pending record. The original is
// left untouched so history stays intact.
func (s *Store) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s, only finished jobs can be retried", id, job.Status)
	}

	argsJSON, err := json.Marshal(job.Arguments)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}
	newID := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, type, status, camera, arguments_json, created_at,
            progress_percent, retry_of
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		newID,
		string(job.Type),
		string(StatusPending),
		job.Camera,
		string(argsJSON),
		now.Format(time.RFC3339Nano),
		0.0,
		job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("clone job for retry: %w", err)
	}
	return s.GetByID(ctx, newID)
}

// Remove deletes a job record by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckRunning returns jobs left in running state by an unclean
// shutdown back to pending.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_phase = NULL, progress_percent = 0,
            progress_message = NULL, started_at = NULL, pid = NULL
        WHERE status = ?`,
		string(StatusPending),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, type, status, camera, arguments_json, created_at, started_at, completed_at, progress_phase, progress_percent, progress_message, output_file, error_message, log_file, pid, retry_of"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		typeStr         string
		statusStr       string
		camera          string
		argumentsJSON   sql.NullString
		createdRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		progressPhase   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		outputFile      sql.NullString
		errorMessage    sql.NullString
		logFile         sql.NullString
		pid             sql.NullInt64
		retryOf         sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&typeStr,
		&statusStr,
		&camera,
		&argumentsJSON,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&progressPhase,
		&progressPercent,
		&progressMessage,
		&outputFile,
		&errorMessage,
		&logFile,
		&pid,
		&retryOf,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:     id,
		Type:   Type(typeStr),
		Status: Status(statusStr),
		Camera: camera,
		Progress: Progress{
			Phase:   progressPhase.String,
			Percent: progressPercent.Float64,
			Message: progressMessage.String,
		},
		OutputFile: outputFile.String,
		Error:      errorMessage.String,
		LogFile:    logFile.String,
		RetryOf:    retryOf.String,
	}
	if pid.Valid {
		job.PID = int(pid.Int64)
	}

	args, err := DecodeArguments(job.Type, []byte(argumentsJSON.String))
	if err != nil {
		return nil, err
	}
	job.Arguments = args

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
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
