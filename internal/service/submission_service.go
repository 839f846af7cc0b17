package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prepware/examhall-backend/internal/config"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrSubmissionNotFound is returned when a submission id does not exist.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionService is the submission sink and the result-management
// surface. Writes go to Postgres first; when the database is unreachable
// the record falls back onto a Redis queue that the persist worker drains,
// so the student's exit is never blocked on storage health.
type SubmissionService struct {
	submissions *repository.SubmissionRepository
	sessions    *repository.ExamSessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions *repository.SubmissionRepository,
	sessions *repository.ExamSessionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		sessions:    sessions,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// AddSubmission persists a submission. Returns saved=true for a direct
// database write, saved=false when the record was only queued to Redis for
// later sync. An error means both paths failed, which the caller treats as
// non-fatal for the student's exit.
func (s *SubmissionService) AddSubmission(ctx context.Context, sub *model.ExamSubmission) (bool, error) {
	inserted, err := s.submissions.Add(ctx, sub)
	if err == nil {
		if !inserted {
			s.log.Warn().Str("exam_code", sub.ExamCode).Int("student_id", sub.StudentID).
				Msg("Duplicate submission ignored")
			return true, nil
		}
		if cErr := s.sessions.RecordSubmission(ctx, sub.ExamCode, sub.Score != nil); cErr != nil {
			s.log.Warn().Err(cErr).Str("exam_code", sub.ExamCode).Msg("Counter bump failed")
		}
		return true, nil
	}

	s.log.Error().Err(err).Str("exam_code", sub.ExamCode).Msg("Direct persist failed, queueing")

	payload, mErr := json.Marshal(sub)
	if mErr != nil {
		return false, fmt.Errorf("marshal submission: %w", mErr)
	}
	if qErr := s.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, payload).Err(); qErr != nil {
		return false, fmt.Errorf("queue submission: %w", qErr)
	}
	return false, nil
}

// Score grades an objective answer set against the track's answer key hash
// in Redis. A missing key means the track is manually graded and the
// submission stays unscored.
func (s *SubmissionService) Score(ctx context.Context, trackID string, answers map[string]string, totalQuestions int) (*float64, error) {
	correct, keySize, err := s.Tally(ctx, trackID, answers)
	if err != nil {
		return nil, err
	}
	if keySize == 0 {
		return nil, nil
	}

	total := totalQuestions
	if total == 0 {
		total = keySize
	}
	score := float64(correct) / float64(total) * 100
	return &score, nil
}

// Tally counts correct answers against the track's answer key hash. The
// returned total is the key size; zero means no key is stored for the
// track and the answers are manually graded.
func (s *SubmissionService) Tally(ctx context.Context, trackID string, answers map[string]string) (int, int, error) {
	key, err := s.rdb.HGetAll(ctx, config.CacheKey.TrackAnswerKey(trackID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("get answer key: %w", err)
	}

	correct := 0
	for qID, expected := range key {
		if answers[qID] == expected {
			correct++
		}
	}
	return correct, len(key), nil
}

// GetSubmission fetches one submission.
func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*model.ExamSubmission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	return sub, err
}

// ListByExamCode lists an exam's submissions for the admin results view.
func (s *SubmissionService) ListByExamCode(ctx context.Context, examCode string) ([]model.ExamSubmission, error) {
	return s.submissions.ListByExamCode(ctx, examCode)
}

// ListForStudent lists a student's published results.
func (s *SubmissionService) ListForStudent(ctx context.Context, studentID int) ([]model.ExamSubmission, error) {
	return s.submissions.ListForStudent(ctx, studentID)
}

// UpdateMark sets a manual score (writing modules) and moves the record to
// graded.
func (s *SubmissionService) UpdateMark(ctx context.Context, id string, score float64) error {
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.submissions.UpdateMark(ctx, id, score)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubmissionNotFound
	}

	if sub.Score == nil {
		if err := s.sessions.RecordGrade(ctx, sub.ExamCode); err != nil {
			s.log.Warn().Err(err).Str("exam_code", sub.ExamCode).Msg("Grade counter bump failed")
		}
	}
	return nil
}

// PublishResults releases every graded result for an exam to its students.
func (s *SubmissionService) PublishResults(ctx context.Context, examCode string) (int, error) {
	count, err := s.submissions.PublishResults(ctx, examCode)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if err := s.sessions.RecordPublished(ctx, examCode, count); err != nil {
			s.log.Warn().Err(err).Str("exam_code", examCode).Msg("Publish counter bump failed")
		}
	}
	return count, nil
}

// GetFolder fetches a submission folder with its live count.
func (s *SubmissionService) GetFolder(ctx context.Context, trackID, examCode string) (*model.SubmissionFolder, error) {
	folder, err := s.submissions.GetFolder(ctx, trackID, examCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	return folder, err
}
