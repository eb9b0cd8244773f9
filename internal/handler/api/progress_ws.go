package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// ProgressSource delivers progress events for one job.
type ProgressSource interface {
	Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, func(), error)
}

// ProgressHandler relays training progress over a websocket.
type ProgressHandler struct {
	logger       *xlogger.Logger
	jobs         JobService
	source       ProgressSource
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
}

func NewProgressHandler(logger *xlogger.Logger, jobs JobService, source ProgressSource) *ProgressHandler {
	return &ProgressHandler{
		logger: logger,
		jobs:   jobs,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

func (h *ProgressHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/forecasts/:id/stream", h.Stream)
}

// Stream sends every progress event of the job and closes after the terminal one.
// A job that already finished gets a single event built from its stored state.
func (h *ProgressHandler) Stream(c echo.Context) error {
	req := &models.JobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// subscribe first so no event is lost between the lookup and the stream
	events, unsubscribe, err := h.source.Subscribe(ctx, req.ID)
	if err != nil {
		return writeError(c, h.logger, "subscribe progress", err, xlogger.String("job_id", req.ID))
	}
	defer unsubscribe()

	job, err := h.jobs.Get(ctx, req.ID)
	if err != nil {
		return writeError(c, h.logger, "load forecast job", jobError(req.ID, err), xlogger.String("job_id", req.ID))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("job_id", req.ID), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	if job.Status.Terminal() {
		h.send(conn, snapshot(job))
		h.close(conn, "job finished")
		return nil
	}

	// reads only detect the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				h.close(conn, "stream closed")
				return nil
			}
			if err := h.send(conn, ev); err != nil {
				h.logger.Debug("progress client gone", xlogger.String("job_id", req.ID), xlogger.Error(err))
				return nil
			}
			if ev.Status.Terminal() {
				h.close(conn, "job finished")
				return nil
			}
		}
	}
}

func (h *ProgressHandler) send(conn *websocket.Conn, ev models.ProgressEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(ev)
}

func (h *ProgressHandler) close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}

func snapshot(job *models.ForecastJob) models.ProgressEvent {
	ts := job.CreatedAt
	if job.FinishedAt != nil {
		ts = *job.FinishedAt
	}
	return models.ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Epoch:     job.Epoch,
		Epochs:    job.Epochs,
		Loss:      job.Loss,
		Error:     job.Error,
		Timestamp: ts,
	}
}
