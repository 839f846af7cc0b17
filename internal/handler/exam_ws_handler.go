package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prepware/examhall-backend/internal/clock"
	"github.com/prepware/examhall-backend/internal/exam"
	"github.com/prepware/examhall-backend/internal/middleware"
	"github.com/prepware/examhall-backend/internal/service"
	"github.com/prepware/examhall-backend/internal/store"
	ws "github.com/prepware/examhall-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ExamWSHandler attaches students to their server-side exam runtime.
type ExamWSHandler struct {
	lifecycle   *service.LifecycleService
	submissions *service.SubmissionService
	directory   *store.Directory
	clock       *clock.Synchronizer
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewExamWSHandler creates a new ExamWSHandler.
func NewExamWSHandler(
	lifecycle *service.LifecycleService,
	submissions *service.SubmissionService,
	directory *store.Directory,
	clk *clock.Synchronizer,
	log zerolog.Logger,
	allowedOrigins []string,
) *ExamWSHandler {
	return &ExamWSHandler{
		lifecycle:   lifecycle,
		submissions: submissions,
		directory:   directory,
		clock:       clk,
		log:         log.With().Str("component", "exam_ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// connEmitter serializes writes to one socket. The runner goroutine and the
// pong reply from the read loop share it.
type connEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *connEmitter) Emit(ev exam.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ws.WriteTyped(e.conn, ev)
}

// AttachExam godoc
// WS /ws/v1/student/exams/:code
// Upgrades to WebSocket and runs the exam session runtime for this student.
func (h *ExamWSHandler) AttachExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code := c.Param("code")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_code", code).
		Logger()

	admission, err := h.lifecycle.AdmitStudent(c.Request.Context(), code, claims.UserID, claims.BatchID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Admission rejected")
		ws.WriteError(conn, admissionError(err))
		return
	}

	runner, err := exam.NewRunner(exam.RunnerConfig{
		Session: admission.Session,
		Status:  admission.Status,
		Participant: exam.Participant{
			StudentID:   claims.UserID,
			StudentName: claims.Name,
			BatchID:     claims.BatchID,
		},
		Feed:        h.directory,
		Coordinator: exam.NewCountdownCoordinator(h.directory, wsLog),
		Sink:        h.submissions,
		Scorer:      h.submissions,
		Emitter:     &connEmitter{conn: conn},
		Now:         h.clock.Now,
		ClockSynced: h.clock.Synced(),
	}, wsLog)
	if err != nil {
		ws.WriteError(conn, "exam session has an invalid module configuration")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wsLog.Info().Msg("Student attached")

	// Read loop feeds the runner; the runner owns all session state.
	go func() {
		defer cancel()
		for {
			var msg ws.ClientMessage
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			runner.Dispatch(msg.Action())
		}
	}()

	runner.Run(ctx)
	_ = ws.CloseWithReason(conn, "session ended")
	wsLog.Info().Msg("Student detached")
}

func admissionError(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return "exam session not found"
	case errors.Is(err, service.ErrExamNotActive):
		return "no exam with this code is currently running"
	case errors.Is(err, service.ErrBatchNotAllowed):
		return "your batch is not allowed to take this exam"
	case errors.Is(err, service.ErrAlreadySubmitted):
		return "you have already submitted this exam"
	default:
		return "admission failed"
	}
}
