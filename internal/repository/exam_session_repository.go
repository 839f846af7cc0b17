package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepware/examhall-backend/internal/model"
)

var ErrDuplicateExamCode = errors.New("exam session with this code already exists")

const examSessionColumns = `code, test_type, track_id, track_name, module_tracks, module_durations,
	 exam_date, start_time, end_time, duration_minutes, status, allowed_batches,
	 countdown_enabled, countdown_seconds,
	 total_submissions, pending_results, graded_results, published_results,
	 created_by, created_at, started_at, completed_at`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanExamSession(row interface{ Scan(dest ...any) error }) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(
		&s.Code, &s.TestType, &s.TrackID, &s.TrackName, &s.ModuleTracks, &s.ModuleDurations,
		&s.ExamDate, &s.StartTime, &s.EndTime, &s.DurationMinutes, &s.Status, &s.AllowedBatches,
		&s.CountdownEnabled, &s.CountdownSeconds,
		&s.TotalSubmissions, &s.PendingResults, &s.GradedResults, &s.PublishedResults,
		&s.CreatedBy, &s.CreatedAt, &s.StartedAt, &s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new scheduled session.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_sessions (`+examSessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		s.Code, s.TestType, s.TrackID, s.TrackName, s.ModuleTracks, s.ModuleDurations,
		s.ExamDate, s.StartTime, s.EndTime, s.DurationMinutes, s.Status, s.AllowedBatches,
		s.CountdownEnabled, s.CountdownSeconds,
		s.TotalSubmissions, s.PendingResults, s.GradedResults, s.PublishedResults,
		s.CreatedBy, s.CreatedAt, s.StartedAt, s.CompletedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateExamCode
	}
	return err
}

// GetByCode retrieves a session by its exam code.
func (r *ExamSessionRepository) GetByCode(ctx context.Context, code string) (*model.ExamSession, error) {
	return scanExamSession(r.pool.QueryRow(ctx,
		`SELECT `+examSessionColumns+` FROM exam_sessions WHERE code = $1`, code,
	))
}

// ListPaginated retrieves sessions with pagination and optional status filter.
func (r *ExamSessionRepository) ListPaginated(ctx context.Context, status *model.SessionStatus, limit, offset int) ([]model.ExamSession, int, error) {
	countQuery := `SELECT COUNT(*) FROM exam_sessions`
	var countArgs []interface{}
	if status != nil {
		countQuery += ` WHERE status = $1`
		countArgs = append(countArgs, *status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + examSessionColumns + ` FROM exam_sessions`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanExamSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, total, rows.Err()
}

// MaxSequenceForPrefix returns the highest sequence already used for codes
// of the form "{prefix}-NNN". Zero when the prefix is unused.
func (r *ExamSessionRepository) MaxSequenceForPrefix(ctx context.Context, prefix string) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(CAST(RIGHT(code, 3) AS INTEGER)), 0)
		 FROM exam_sessions WHERE code LIKE $1 || '-%'`, prefix,
	).Scan(&max)
	return max, err
}

// Activate transitions a session scheduled → active. Returns false when the
// session was not in the scheduled state, which keeps the transition
// one-directional even under concurrent admin requests.
func (r *ExamSessionRepository) Activate(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = 'active', started_at = NOW()
		 WHERE code = $1 AND status = 'scheduled'`, code,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete transitions a session active → completed.
func (r *ExamSessionRepository) Complete(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = 'completed', completed_at = NOW()
		 WHERE code = $1 AND status = 'active'`, code,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a session. Only scheduled sessions can be deleted.
func (r *ExamSessionRepository) Delete(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exam_sessions WHERE code = $1 AND status = 'scheduled'`, code,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiredActive returns active sessions that have outrun their
// duration. The deadline runs from the moment the exam actually went
// active (started_at, falling back to created_at for rows activated before
// that column existed) plus the configured duration, so a session started
// behind schedule still gets its full window.
func (r *ExamSessionRepository) ListExpiredActive(ctx context.Context) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examSessionColumns+` FROM exam_sessions
		 WHERE status = 'active'
		   AND COALESCE(started_at, created_at) + make_interval(mins => duration_minutes) <= NOW()`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanExamSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// RecordSubmission bumps the session's submission counters.
func (r *ExamSessionRepository) RecordSubmission(ctx context.Context, code string, graded bool) error {
	query := `UPDATE exam_sessions
		 SET total_submissions = total_submissions + 1, pending_results = pending_results + 1
		 WHERE code = $1`
	if graded {
		query = `UPDATE exam_sessions
		 SET total_submissions = total_submissions + 1, graded_results = graded_results + 1
		 WHERE code = $1`
	}
	_, err := r.pool.Exec(ctx, query, code)
	return err
}

// RecordGrade moves one result pending → graded.
func (r *ExamSessionRepository) RecordGrade(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET pending_results = GREATEST(pending_results - 1, 0), graded_results = graded_results + 1
		 WHERE code = $1`, code,
	)
	return err
}

// RecordPublished adds to the published counter.
func (r *ExamSessionRepository) RecordPublished(ctx context.Context, code string, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET published_results = published_results + $2 WHERE code = $1`,
		code, count,
	)
	return err
}
