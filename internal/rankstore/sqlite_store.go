// Package rankstore provides persistent storage for ranking job state and
// results using SQLite.
package rankstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/generank/server/internal/rank"
)

// JobStatus represents the current state of a ranking job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobParams contains the parameters for a ranking job.
type JobParams struct {
	DatasetID string             `json:"dataset_id"`
	Groupby   string             `json:"groupby"`
	UseRaw    bool               `json:"use_raw"`
	Groups    []string           `json:"groups,omitempty"`
	Reference string             `json:"reference,omitempty"`
	NGenes    int                `json:"n_genes,omitempty"`
	RankbyAbs bool               `json:"rankby_abs,omitempty"`
	Method    string             `json:"method"`
	LogReg    rank.LogRegOptions `json:"logreg,omitempty"`
}

// JobProgress represents the progress of a ranking job.
type JobProgress struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Job represents one gene ranking job.
type Job struct {
	ID         string      `json:"job_id"`
	DatasetID  string      `json:"dataset_id"`
	Status     JobStatus   `json:"status"`
	Params     JobParams   `json:"params"`
	Progress   JobProgress `json:"progress"`
	HasStats   bool        `json:"has_stats"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// GeneResult is one ranked gene within a group column.
type GeneResult struct {
	Group   string  `json:"group"`
	Rank    int     `json:"rank"`
	Gene    string  `json:"gene"`
	Score   float64 `json:"score"`
	Log2FC  float64 `json:"log2fc"`
	Pval    float64 `json:"pval"`
	PvalAdj float64 `json:"pval_adj"`
}

// Store provides persistent storage for ranking jobs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based ranking store.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rank_jobs (
		job_id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		phase TEXT DEFAULT '',
		done INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		has_stats INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rank_jobs_dataset ON rank_jobs(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_rank_jobs_status ON rank_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_rank_jobs_finished ON rank_jobs(finished_at);

	CREATE TABLE IF NOT EXISTS rank_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		gene TEXT NOT NULL,
		score REAL NOT NULL,
		log2fc REAL NOT NULL,
		pval REAL NOT NULL,
		pval_adj REAL NOT NULL,
		FOREIGN KEY (job_id) REFERENCES rank_jobs(job_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rank_results_job ON rank_results(job_id);
	CREATE INDEX IF NOT EXISTS idx_rank_results_job_group ON rank_results(job_id, group_id, rank);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateJob creates a new job record with status=queued.
func (s *Store) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO rank_jobs (job_id, dataset_id, status, params_json, phase, done, total, has_stats, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Params.DatasetID,
		string(job.Status),
		string(paramsJSON),
		job.Progress.Phase,
		job.Progress.Done,
		job.Progress.Total,
		boolToInt(job.HasStats),
		job.Error,
		job.CreatedAt.Format(time.RFC3339),
		nil,
		nil,
	)
	return err
}

// GetJob retrieves a job by ID. Returns (nil, nil) when absent.
func (s *Store) GetJob(jobID string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT job_id, dataset_id, status, params_json, phase, done, total, has_stats, error, created_at, started_at, finished_at
		FROM rank_jobs WHERE job_id = ?
	`, jobID)

	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// UpdateJobStatus updates the job status; terminal statuses also set the
// finish time.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
		t := time.Now().Format(time.RFC3339)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE rank_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a job as running with start time.
func (s *Store) UpdateJobStarted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE rank_jobs SET status = ?, started_at = ?
		WHERE job_id = ?
	`, string(JobStatusRunning), now, jobID)
	return err
}

// UpdateJobProgress updates the progress fields.
func (s *Store) UpdateJobProgress(jobID string, phase string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE rank_jobs SET phase = ?, done = ?, total = ?
		WHERE job_id = ?
	`, phase, done, total, jobID)
	return err
}

// SetJobHasStats records whether the job's method produces fold-change
// and p-value columns.
func (s *Store) SetJobHasStats(jobID string, hasStats bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE rank_jobs SET has_stats = ? WHERE job_id = ?`, boolToInt(hasStats), jobID)
	return err
}

// InsertResults inserts ranked gene rows in a batch transaction.
func (s *Store) InsertResults(jobID string, results []*GeneResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO rank_results (job_id, group_id, rank, gene, score, log2fc, pval, pval_adj)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(jobID, r.Group, r.Rank, r.Gene, r.Score, r.Log2FC, r.Pval, r.PvalAdj); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryResults returns the ranked genes for a job, optionally restricted
// to one group, in (group, rank) order with pagination.
func (s *Store) QueryResults(jobID, group string, offset, limit int) ([]*GeneResult, int, error) {
	where := "job_id = ?"
	args := []interface{}{jobID}
	if group != "" {
		where += " AND group_id = ?"
		args = append(args, group)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rank_results WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT group_id, rank, gene, score, log2fc, pval, pval_adj
		FROM rank_results
		WHERE ` + where + `
		ORDER BY group_id, rank
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []*GeneResult
	for rows.Next() {
		var r GeneResult
		if err := rows.Scan(&r.Group, &r.Rank, &r.Gene, &r.Score, &r.Log2FC, &r.Pval, &r.PvalAdj); err != nil {
			return nil, 0, err
		}
		results = append(results, &r)
	}
	return results, total, rows.Err()
}

// ResultGroups returns the distinct output groups of a job. Insertion order
// is the resolved group order of the ranking, so groups are ordered by the
// rowid of their first result rather than alphabetically.
func (s *Store) ResultGroups(jobID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT group_id FROM rank_results WHERE job_id = ? GROUP BY group_id ORDER BY MIN(id)
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListJobsByDataset returns all jobs for a dataset, newest first.
func (s *Store) ListJobsByDataset(datasetID string) ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT job_id, dataset_id, status, params_json, phase, done, total, has_stats, error, created_at, started_at, finished_at
		FROM rank_jobs WHERE dataset_id = ?
		ORDER BY created_at DESC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListQueuedJobs returns all queued jobs (for restart recovery).
func (s *Store) ListQueuedJobs() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT job_id, dataset_id, status, params_json, phase, done, total, has_stats, error, created_at, started_at, finished_at
		FROM rank_jobs WHERE status = ?
		ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// MarkRunningAsFailed marks all running jobs as failed (for restart
// recovery).
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE rank_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpiredJobs deletes finished jobs older than retentionDays.
func (s *Store) DeleteExpiredJobs(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	_, err := s.db.Exec(`
		DELETE FROM rank_results WHERE job_id IN (
			SELECT job_id FROM rank_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec(`
		DELETE FROM rank_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteJob deletes a job and its results.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM rank_results WHERE job_id = ?", jobID); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM rank_jobs WHERE job_id = ?", jobID)
	return err
}

func scanJob(scan func(...interface{}) error) (*Job, error) {
	var job Job
	var paramsJSON string
	var hasStats int
	var createdAtStr string
	var startedAtStr, finishedAtStr sql.NullString

	err := scan(
		&job.ID,
		&job.DatasetID,
		&job.Status,
		&paramsJSON,
		&job.Progress.Phase,
		&job.Progress.Done,
		&job.Progress.Total,
		&hasStats,
		&job.Error,
		&createdAtStr,
		&startedAtStr,
		&finishedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	job.HasStats = hasStats != 0

	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if startedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, startedAtStr.String)
		job.StartedAt = &t
	}
	if finishedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
		job.FinishedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
