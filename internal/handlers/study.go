package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/middleware"
	"github.com/ai-shifu/shifu-backend/internal/runner"
	"github.com/ai-shifu/shifu-backend/internal/services"
)

type StudyHandler struct {
	log        *logger.Logger
	controller *runner.StudyController
	ask        services.AskService
}

func NewStudyHandler(log *logger.Logger, controller *runner.StudyController, ask services.AskService) *StudyHandler {
	return &StudyHandler{
		log:        log.With("handler", "StudyHandler"),
		controller: controller,
		ask:        ask,
	}
}

type runRequestBody struct {
	ShifuBID   string `json:"shifu_bid"`
	OutlineBID string `json:"outline_bid"`
	Preview    bool   `json:"preview"`
	Input      string `json:"input"`
	InputType  string `json:"input_type"`
	ReloadBID  string `json:"reload_bid"`
}

// Run drives the lesson state machine and relays its events over SSE, one
// JSON object per event. Closing the connection cancels the run between
// blocks; the in-flight block still finishes server-side.
func (h *StudyHandler) Run(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var body runRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	stream, err := h.controller.Stream(c.Request.Context(), runner.RunRequest{
		User:       user,
		ShifuBID:   body.ShifuBID,
		OutlineBID: body.OutlineBID,
		Preview:    body.Preview,
		Input:      body.Input,
		InputType:  body.InputType,
		ReloadBID:  body.ReloadBID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	flusher := setupSSE(c)
	if flusher == nil {
		stream.Cancel()
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			stream.Cancel()
			// Wait for teardown so the lock is released before we return.
			<-stream.Done()
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			writeSSE(c, flusher, ev)
			if ev.Type == runner.EventEnd {
				<-stream.Done()
				return
			}
		}
	}
}

type askRequestBody struct {
	ShifuBID   string             `json:"shifu_bid"`
	OutlineBID string             `json:"outline_bid"`
	Preview    bool               `json:"preview"`
	Question   string             `json:"question" binding:"required"`
	History    []services.AskTurn `json:"history"`
}

// Ask answers a free-form question about the course over SSE. Read-only: it
// takes no run lock and writes no progress.
func (h *StudyHandler) Ask(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var body askRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	flusher := setupSSE(c)
	if flusher == nil {
		return
	}

	_, err := h.ask.Ask(c.Request.Context(), services.AskRequest{
		User:       user,
		ShifuBID:   body.ShifuBID,
		OutlineBID: body.OutlineBID,
		Preview:    body.Preview,
		Question:   body.Question,
		History:    body.History,
	}, func(delta string) {
		writeSSE(c, flusher, runner.Event{Type: runner.EventContent, Text: delta})
	})
	if err != nil {
		writeSSE(c, flusher, runner.Event{Type: runner.EventError, Text: "ASK_FAILED"})
		writeSSE(c, flusher, runner.Event{Type: runner.EventEnd, Reason: runner.EndReasonError})
		return
	}
	writeSSE(c, flusher, runner.Event{Type: runner.EventEnd, Reason: runner.EndReasonComplete})
}

// Running reports whether a run currently holds the lock for an outline item.
func (h *StudyHandler) Running(c *gin.Context) {
	user := middleware.CurrentUser(c)
	outlineBID := c.Query("outline_bid")
	if outlineBID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_OUTLINE_BID"})
		return
	}
	running, err := h.controller.IsRunning(c.Request.Context(), user.BID, outlineBID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": running})
}

type transcriptRecord struct {
	GeneratedBID string          `json:"generated_bid"`
	BlockBID     string          `json:"block_bid"`
	Role         string          `json:"role"`
	Content      string          `json:"content"`
	UI           json.RawMessage `json:"ui,omitempty"`
	Liked        int             `json:"liked"`
	Position     int             `json:"position"`
}

// Records returns the live transcript for an outline item so a returning
// client can rebuild the lesson view after a refresh.
func (h *StudyHandler) Records(c *gin.Context) {
	user := middleware.CurrentUser(c)
	outlineBID := c.Query("outline_bid")
	if outlineBID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_OUTLINE_BID"})
		return
	}
	rows, err := h.controller.Transcript(c.Request.Context(), user, outlineBID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	records := make([]transcriptRecord, 0, len(rows))
	for _, g := range rows {
		records = append(records, transcriptRecord{
			GeneratedBID: g.BID,
			BlockBID:     g.BlockBID,
			Role:         g.Role,
			Content:      g.Content,
			UI:           json.RawMessage(g.UI),
			Liked:        g.Liked,
			Position:     g.Position,
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type likeRequestBody struct {
	GeneratedBID string `json:"generated_bid" binding:"required"`
	Liked        int    `json:"liked"`
}

func (h *StudyHandler) Like(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var body likeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if body.Liked < -1 || body.Liked > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_LIKED_VALUE"})
		return
	}
	if err := h.controller.Like(c.Request.Context(), user, body.GeneratedBID, body.Liked); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generated_bid": body.GeneratedBID, "liked": body.Liked})
}

type resetRequestBody struct {
	ShifuBID   string `json:"shifu_bid"`
	OutlineBID string `json:"outline_bid" binding:"required"`
	Preview    bool   `json:"preview"`
}

func (h *StudyHandler) Reset(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var body resetRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if err := h.controller.Reset(c.Request.Context(), user, body.ShifuBID, body.OutlineBID, body.Preview); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": body.OutlineBID})
}

func setupSSE(c *gin.Context) http.Flusher {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STREAMING_UNSUPPORTED"})
		return nil
	}
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher
}

func writeSSE(c *gin.Context, flusher http.Flusher, ev runner.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	flusher.Flush()
}
