package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prepware/examhall-backend/internal/clock"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/repository"
	"github.com/prepware/examhall-backend/internal/store"
	"github.com/rs/zerolog"
)

// Lifecycle errors surfaced to handlers.
var (
	ErrSessionNotFound   = errors.New("exam session not found")
	ErrAnotherExamActive = errors.New("another exam is already running")
	ErrExamNotActive     = errors.New("exam is not currently running")
	ErrNotScheduled      = errors.New("exam session is not in the scheduled state")
	ErrBatchNotAllowed   = errors.New("student batch is not allowed for this exam")
	ErrAlreadySubmitted  = errors.New("student already submitted this exam")
)

// LifecycleService owns the exam session state machine: scheduling,
// code generation, the start/stop broadcast, and student admission.
// The global status record in Redis is the single run-state authority;
// Postgres rows only mirror it for history and listing.
type LifecycleService struct {
	sessions    *repository.ExamSessionRepository
	submissions *repository.SubmissionRepository
	directory   *store.Directory
	clock       *clock.Synchronizer
	log         zerolog.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(
	sessions *repository.ExamSessionRepository,
	submissions *repository.SubmissionRepository,
	directory *store.Directory,
	clk *clock.Synchronizer,
	log zerolog.Logger,
) *LifecycleService {
	return &LifecycleService{
		sessions:    sessions,
		submissions: submissions,
		directory:   directory,
		clock:       clk,
		log:         log.With().Str("component", "lifecycle_service").Logger(),
	}
}

// GenerateCode produces the next free exam code for the request's prefix:
// {PREFIX}-{YYYYMMDD}-{seq}, sequence zero-padded to three digits.
func (s *LifecycleService) GenerateCode(ctx context.Context, req *model.GenerateCodeRequest) (string, error) {
	prefix := codePrefix(req.TestType, req.TrackShortName, req.Date)
	max, err := s.sessions.MaxSequenceForPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("max sequence: %w", err)
	}
	return FormatExamCode(prefix, max+1), nil
}

// FormatExamCode renders a prefix and sequence into the final code form.
func FormatExamCode(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

func codePrefix(t model.TestType, trackShortName, date string) string {
	compact := strings.ReplaceAll(date, "-", "")
	if t == model.TestTypeMock {
		return fmt.Sprintf("MOCK-%s", compact)
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(trackShortName), compact)
}

// CreateSession schedules a new exam session and pre-creates its
// submission folder so the sink exists before any student can submit.
func (s *LifecycleService) CreateSession(ctx context.Context, code, createdBy string, req *model.CreateSessionRequest) (*model.ExamSession, error) {
	session := &model.ExamSession{
		Code:             code,
		TestType:         req.TestType,
		TrackID:          req.TrackID,
		TrackName:        req.TrackName,
		ModuleTracks:     req.ModuleTracks,
		ModuleDurations:  req.ModuleDurations,
		ExamDate:         req.ExamDate,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		DurationMinutes:  req.DurationMinutes,
		Status:           model.SessionStatusScheduled,
		AllowedBatches:   req.AllowedBatches,
		CountdownEnabled: req.CountdownEnabled,
		CountdownSeconds: req.CountdownSeconds,
		CreatedBy:        createdBy,
		CreatedAt:        s.clock.Now(),
	}

	topo, err := session.Topology()
	if err != nil {
		return nil, err
	}
	if session.TestType == model.TestTypeMock {
		session.DurationMinutes = topo.TotalDurationMinutes()
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.submissions.CreateFolder(ctx, folderFor(session, createdBy)); err != nil {
		s.log.Error().Err(err).Str("exam_code", code).Msg("Submission folder create failed")
		return nil, fmt.Errorf("create submission folder: %w", err)
	}

	s.log.Info().Str("exam_code", code).Str("test_type", string(session.TestType)).Msg("Exam session scheduled")
	return session, nil
}

// folderFor builds the submission-folder record for a session.
func folderFor(session *model.ExamSession, createdBy string) *model.SubmissionFolder {
	return &model.SubmissionFolder{
		TrackID:      session.SubmissionTrackID(),
		TrackName:    session.TrackName,
		ExamCode:     session.Code,
		TestType:     session.TestType,
		ModuleTracks: session.ModuleTracks,
		CreatedBy:    createdBy,
		CreatedAt:    session.CreatedAt,
	}
}

// ensureFolder verifies the session's submission folder exists, recreating
// it when missing.
func (s *LifecycleService) ensureFolder(ctx context.Context, session *model.ExamSession) error {
	_, err := s.submissions.GetFolder(ctx, session.SubmissionTrackID(), session.Code)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	s.log.Warn().Str("exam_code", session.Code).Msg("Submission folder missing at start, recreating")
	return s.submissions.CreateFolder(ctx, folderFor(session, session.CreatedBy))
}

// GetSession fetches a session by code.
func (s *LifecycleService) GetSession(ctx context.Context, code string) (*model.ExamSession, error) {
	session, err := s.sessions.GetByCode(ctx, code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ListSessions lists sessions with optional status filter.
func (s *LifecycleService) ListSessions(ctx context.Context, status *model.SessionStatus, limit, offset int) ([]model.ExamSession, int, error) {
	return s.sessions.ListPaginated(ctx, status, limit, offset)
}

// DeleteSession removes a scheduled session.
func (s *LifecycleService) DeleteSession(ctx context.Context, code string) error {
	ok, err := s.sessions.Delete(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotScheduled
	}
	return nil
}

// StartExam flips a scheduled session live. At most one exam runs at a
// time: the call fails while another code owns the global status. When the
// session has a countdown configured, the start is deferred: only the
// countdown record is written, carrying the persisted exam start time, and
// the countdown worker activates the status when that time comes due. A
// missed tick therefore delays activation instead of losing it.
func (s *LifecycleService) StartExam(ctx context.Context, code, startedBy string) (*model.GlobalExamStatus, error) {
	current, err := s.directory.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if current != nil && current.IsStarted && current.ExamCode != code {
		return nil, ErrAnotherExamActive
	}

	session, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	topo, err := session.Topology()
	if err != nil {
		return nil, err
	}

	// The folder is normally pre-created with the session, but an exam must
	// never go live without its submission sink, so recreate it if missing.
	if err := s.ensureFolder(ctx, session); err != nil {
		return nil, fmt.Errorf("ensure submission folder: %w", err)
	}

	ok, err := s.sessions.Activate(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	if !ok && session.Status != model.SessionStatusActive {
		return nil, ErrNotScheduled
	}

	now := s.clock.Now()

	if session.CountdownEnabled && session.CountdownSeconds > 0 {
		examStart := now.Add(time.Duration(session.CountdownSeconds) * time.Second)
		state := &model.CountdownState{
			IsActive:           true,
			ExamCode:           code,
			CountdownStartTime: &now,
			CountdownSeconds:   session.CountdownSeconds,
			ExamStartTime:      &examStart,
			TestType:           session.TestType,
			TrackName:          session.TrackName,
			ModuleTracks:       session.ModuleTracks,
			AllowedBatches:     session.AllowedBatches,
		}
		if err := s.directory.SetCountdown(ctx, state); err != nil {
			return nil, fmt.Errorf("set countdown: %w", err)
		}
		s.log.Info().Str("exam_code", code).Int("seconds", session.CountdownSeconds).Msg("Countdown armed")
		return nil, nil
	}

	status := buildStatus(session, topo, now, startedBy)
	if err := s.directory.SetStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	s.log.Info().Str("exam_code", code).Str("started_by", startedBy).Msg("Exam started")
	return status, nil
}

// ActivateFromCountdown writes the started status for a countdown whose
// persisted start time has come due. Called by the countdown worker.
func (s *LifecycleService) ActivateFromCountdown(ctx context.Context, state *model.CountdownState) (*model.GlobalExamStatus, error) {
	session, err := s.GetSession(ctx, state.ExamCode)
	if err != nil {
		return nil, err
	}
	topo, err := session.Topology()
	if err != nil {
		return nil, err
	}

	// The recorded start time stays authoritative even if the worker wakes
	// late, so every client derives the same schedule.
	status := buildStatus(session, topo, *state.ExamStartTime, "countdown")
	if err := s.directory.SetStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if err := s.directory.ClearCountdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Countdown clear failed after activation")
	}

	s.log.Info().Str("exam_code", state.ExamCode).Time("start", *state.ExamStartTime).Msg("Exam activated from countdown")
	return status, nil
}

func buildStatus(session *model.ExamSession, topo model.Topology, start time.Time, startedBy string) *model.GlobalExamStatus {
	end := start.Add(time.Duration(topo.TotalDurationMinutes()) * time.Minute)
	return &model.GlobalExamStatus{
		IsStarted:       true,
		ExamCode:        session.Code,
		TestType:        session.TestType,
		TrackID:         session.TrackID,
		TrackName:       session.TrackName,
		ModuleTracks:    session.ModuleTracks,
		ModuleDurations: session.ModuleDurations,
		GlobalStartTime: &start,
		GlobalEndTime:   &end,
		DurationMinutes: topo.TotalDurationMinutes(),
		StartedBy:       startedBy,
	}
}

// StopExam ends the running exam: the status record is deleted, which
// every connected runtime observes as an administrative stop, and the
// session row moves to completed.
func (s *LifecycleService) StopExam(ctx context.Context, code string) error {
	current, err := s.directory.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if current == nil || !current.IsStarted || current.ExamCode != code {
		// A countdown can be cancelled before the exam ever goes live.
		if state, cErr := s.directory.Countdown(ctx); cErr == nil && state != nil && state.ExamCode == code {
			if err := s.directory.ClearCountdown(ctx); err != nil {
				return fmt.Errorf("clear countdown: %w", err)
			}
			s.log.Info().Str("exam_code", code).Msg("Countdown cancelled")
			return nil
		}
		return ErrExamNotActive
	}

	if err := s.directory.DeleteStatus(ctx); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if err := s.directory.ClearCountdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Countdown clear failed on stop")
	}

	if _, err := s.sessions.Complete(ctx, code); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}

	s.log.Info().Str("exam_code", code).Msg("Exam stopped")
	return nil
}

// StopExpired sweeps active sessions whose window has closed and stops any
// that still own the global status. Used by the auto-stop worker. The query
// compares against database time; the synced clock re-checks each row so a
// skewed database host cannot cut a running exam short.
func (s *LifecycleService) StopExpired(ctx context.Context) (int, error) {
	expired, err := s.sessions.ListExpiredActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	stopped := 0
	for _, session := range expired {
		if s.clock.Now().Before(session.ExpiryDeadline()) {
			continue
		}
		if err := s.StopExam(ctx, session.Code); err != nil {
			if errors.Is(err, ErrExamNotActive) {
				// Status already gone; close out the row.
				if _, cErr := s.sessions.Complete(ctx, session.Code); cErr != nil {
					s.log.Error().Err(cErr).Str("exam_code", session.Code).Msg("Expired session close failed")
				}
				continue
			}
			s.log.Error().Err(err).Str("exam_code", session.Code).Msg("Auto-stop failed")
			continue
		}
		stopped++
	}
	return stopped, nil
}

// Admission is the validated entry ticket handed to the exam runtime.
type Admission struct {
	Session *model.ExamSession
	Status  *model.GlobalExamStatus
}

// AdmitStudent validates a student's entry into an exam: the code must
// name a live exam (or one counting down), the student's batch must be
// allowed, and a student with a persisted submission is turned away so a
// reconnect after submit cannot restart the exam.
func (s *LifecycleService) AdmitStudent(ctx context.Context, code string, studentID int, batchID string) (*Admission, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	status, err := s.directory.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	live := status != nil && status.IsStarted && status.ExamCode == code
	if !live {
		state, cErr := s.directory.Countdown(ctx)
		if cErr != nil || state == nil || !state.IsActive || state.ExamCode != code {
			return nil, ErrExamNotActive
		}
	}

	if !batchAllowed(session.AllowedBatches, batchID) {
		return nil, ErrBatchNotAllowed
	}

	submitted, err := s.submissions.HasSubmitted(ctx, code, studentID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if submitted {
		return nil, ErrAlreadySubmitted
	}

	return &Admission{Session: session, Status: status}, nil
}

func batchAllowed(allowed []string, batchID string) bool {
	for _, b := range allowed {
		if b == batchID || b == "*" {
			return true
		}
	}
	return false
}
