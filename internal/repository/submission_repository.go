package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepware/examhall-backend/internal/model"
)

const submissionColumns = `id, student_id, student_name, exam_code, batch_id, test_type,
	 track_id, track_name, track_ids, answers, sections,
	 submitted_at, time_spent, total_questions, score,
	 status, auto_submitted, result_published`

// SubmissionRepository handles exam submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row interface{ Scan(dest ...any) error }) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := row.Scan(
		&s.ID, &s.StudentID, &s.StudentName, &s.ExamCode, &s.BatchID, &s.TestType,
		&s.TrackID, &s.TrackName, &s.TrackIDs, &s.Answers, &s.Sections,
		&s.SubmittedAt, &s.TimeSpent, &s.TotalQuestions, &s.Score,
		&s.Status, &s.AutoSubmitted, &s.ResultPublished,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Add persists a submission. The (exam_code, student_id) unique constraint
// plus ON CONFLICT DO NOTHING makes the write idempotent at the database
// level as well: the first write wins, any duplicate reports inserted=false.
func (r *SubmissionRepository) Add(ctx context.Context, sub *model.ExamSubmission) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (exam_code, student_id) DO NOTHING`,
		sub.ID, sub.StudentID, sub.StudentName, sub.ExamCode, sub.BatchID, sub.TestType,
		sub.TrackID, sub.TrackName, sub.TrackIDs, sub.Answers, sub.Sections,
		sub.SubmittedAt, sub.TimeSpent, sub.TotalQuestions, sub.Score,
		sub.Status, sub.AutoSubmitted, sub.ResultPublished,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasSubmitted reports whether a student already has a record for the exam.
func (r *SubmissionRepository) HasSubmitted(ctx context.Context, examCode string, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE exam_code = $1 AND student_id = $2)`,
		examCode, studentID,
	).Scan(&exists)
	return exists, err
}

// GetByID retrieves one submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*model.ExamSubmission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id,
	))
}

// ListByExamCode retrieves all submissions for an exam code.
func (r *SubmissionRepository) ListByExamCode(ctx context.Context, examCode string) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_code = $1 ORDER BY submitted_at`, examCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.ExamSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// ListForStudent retrieves a student's published results.
func (r *SubmissionRepository) ListForStudent(ctx context.Context, studentID int) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE student_id = $1 AND result_published = TRUE
		 ORDER BY submitted_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.ExamSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// UpdateMark sets a manual score and flips the record to graded.
func (r *SubmissionRepository) UpdateMark(ctx context.Context, id string, score float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET score = $2, status = 'graded' WHERE id = $1`,
		id, score,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PublishResults marks every graded submission for an exam as published and
// returns how many records flipped.
func (r *SubmissionRepository) PublishResults(ctx context.Context, examCode string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET result_published = TRUE
		 WHERE exam_code = $1 AND result_published = FALSE AND score IS NOT NULL`,
		examCode,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CreateFolder records the per-(track, exam code) folder metadata. Idempotent.
func (r *SubmissionRepository) CreateFolder(ctx context.Context, f *model.SubmissionFolder) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submission_folders
		 (track_id, track_name, exam_code, test_type, module_tracks, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (track_id, exam_code) DO NOTHING`,
		f.TrackID, f.TrackName, f.ExamCode, f.TestType, f.ModuleTracks, f.CreatedBy, f.CreatedAt,
	)
	return err
}

// GetFolder retrieves folder metadata with a live submission count.
func (r *SubmissionRepository) GetFolder(ctx context.Context, trackID, examCode string) (*model.SubmissionFolder, error) {
	f := &model.SubmissionFolder{}
	err := r.pool.QueryRow(ctx,
		`SELECT f.track_id, f.track_name, f.exam_code, f.test_type, f.module_tracks, f.created_by, f.created_at,
		        (SELECT COUNT(*) FROM submissions s WHERE s.exam_code = f.exam_code)
		 FROM submission_folders f WHERE f.track_id = $1 AND f.exam_code = $2`,
		trackID, examCode,
	).Scan(&f.TrackID, &f.TrackName, &f.ExamCode, &f.TestType, &f.ModuleTracks, &f.CreatedBy, &f.CreatedAt, &f.TotalSubmissions)
	if err != nil {
		return nil, err
	}
	return f, nil
}
