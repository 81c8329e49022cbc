package apihandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"maestro/internal/app"
	"maestro/internal/models"
	"maestro/internal/query"

	"github.com/gin-gonic/gin"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(a *app.App) *APIHandler {
	return &APIHandler{App: a}
}

// ReleaseTaskRequest is the submission body. Generation parameters bind
// directly; ai_token duplicates the Authorization header for clients
// that cannot set custom headers.
type ReleaseTaskRequest struct {
	models.GenerationRequest
	AIToken string `json:"ai_token,omitempty"`
}

// ReleaseTaskResponse is the payload wrapped into the envelope on a
// successful asynchronous submit.
type ReleaseTaskResponse struct {
	TaskID               string  `json:"task_id"`
	QueuePosition        int     `json:"queue_position"`
	EstimatedWaitSeconds float64 `json:"estimated_wait_seconds"`
}

// ReleaseTaskHandler accepts a generation job. By default it responds
// immediately with the task id; with ?wait=1 it blocks until the job
// reaches a terminal state and responds with the same item shape as
// /query_result.
func (h *APIHandler) ReleaseTaskHandler(c *gin.Context) {
	var req ReleaseTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.App.Verifier.VerifyToken(req.AIToken, c.GetHeader("Authorization")); err != nil {
		Unauthorized(c, err.Error())
		return
	}

	genReq := req.GenerationRequest
	rec, done, _, err := h.App.Submit(&genReq)
	if err != nil {
		if errors.Is(err, models.ErrQueueFull) {
			TooManyRequests(c, "Submission queue is full, retry later")
			return
		}
		Internal(c, fmt.Sprintf("ReleaseTaskHandler: failed to submit job: %v", err))
		return
	}

	if c.Query("wait") == "1" {
		h.respondWhenDone(c, rec.ID, done)
		return
	}

	OK(c, ReleaseTaskResponse{
		TaskID:               rec.ID,
		QueuePosition:        h.App.Queue.Depth(),
		EstimatedWaitSeconds: h.App.EstimatedWait(),
	})
}

// respondWhenDone blocks the request on the job's one-shot completion
// signal, then answers with the aggregated result item.
func (h *APIHandler) respondWhenDone(c *gin.Context, jobID string, done <-chan struct{}) {
	select {
	case <-done:
	case <-c.Request.Context().Done():
		return
	}
	items := h.App.Aggregator.Collect(c.Request.Context(), []string{jobID})
	OK(c, items)
}

// QueryResultRequest is the batch poll body. task_id_list is permissive:
// a JSON array, or a string containing one.
type QueryResultRequest struct {
	TaskIDList json.RawMessage `json:"task_id_list"`
	AIToken    string          `json:"ai_token,omitempty"`
}

// QueryResultHandler answers a batch poll with one item per task id.
func (h *APIHandler) QueryResultHandler(c *gin.Context) {
	var req QueryResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.App.Verifier.VerifyToken(req.AIToken, c.GetHeader("Authorization")); err != nil {
		Unauthorized(c, err.Error())
		return
	}

	ids := query.ParseTaskIDs(req.TaskIDList)
	items := h.App.Aggregator.Collect(c.Request.Context(), ids)
	OK(c, items)
}

// EventsHandler streams a job's lifecycle events over SSE. The terminal
// "done" event is always the last one sent. For a job already finished
// (or unknown) the handler synthesizes the terminal events from the
// store so late subscribers still get a complete stream.
func (h *APIHandler) EventsHandler(c *gin.Context) {
	jobID := c.Param("id")

	rec, exists := h.App.Store.Get(jobID)
	if exists && rec.Status.Terminal() {
		h.streamTerminal(c, rec)
		return
	}
	if !exists {
		JSONError(c, http.StatusNotFound, "Unknown task id: "+jobID)
		return
	}

	events := h.App.Store.AttachEvents(jobID, 4)
	done := h.App.Store.AttachDone(jobID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return ev.Type != models.EventDone
		case <-done:
			// Completion can race ahead of event delivery; drain what is
			// buffered and stop.
			for {
				select {
				case ev := <-events:
					c.SSEvent(ev.Type, ev)
					if ev.Type == models.EventDone {
						return false
					}
				default:
					c.SSEvent(models.EventDone, models.Event{Type: models.EventDone})
					return false
				}
			}
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// streamTerminal replays a finished job as a two-event stream.
func (h *APIHandler) streamTerminal(c *gin.Context, rec models.JobRecord) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	if rec.Status == models.StatusSucceeded {
		c.SSEvent(models.EventResult, models.Event{Type: models.EventResult, Result: rec.Result})
	} else {
		c.SSEvent(models.EventError, models.Event{Type: models.EventError, Content: rec.Error})
	}
	c.SSEvent(models.EventDone, models.Event{Type: models.EventDone})
	c.Writer.Flush()
}

// HealthHandler answers liveness probes.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// StatsHandler serves the operational snapshot.
func (h *APIHandler) StatsHandler(c *gin.Context) {
	OK(c, h.App.Stats())
}
