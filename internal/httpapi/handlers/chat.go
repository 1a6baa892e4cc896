package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/common"
)

func (h *Handler) CreateChatSession(c *gin.Context) {
	sess, err := h.ChatSvc.CreateSession(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}
	common.OK(c, gin.H{"session_id": sess.SessionID})
}

type sendMessageReq struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// SendChatMessage is the blocking chat endpoint. A missing or unknown
// session id gets a fresh session rather than an error.
func (h *Handler) SendChatMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message is required")
		return
	}

	assistant, sessionID, err := h.ChatSvc.SendMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		slog.Error("send message failed", "session_id", req.SessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to get response from agent")
		return
	}

	common.OK(c, gin.H{
		"session_id": sessionID,
		"message":    assistant,
	})
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	msgs, err := h.ChatSvc.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to load history")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type streamMessageReq struct {
	SessionID     string `json:"session_id"`
	Message       string `json:"message" binding:"required"`
	IncludeImages bool   `json:"include_images"`
}

// StreamChatMessage streams agent events as SSE data records:
//
//	data: {"type":"status","content":"..."}
//	data: {"type":"text","content":"..."}
//	data: {"type":"done","sessionId":"..."}
func (h *Handler) StreamChatMessage(c *gin.Context) {
	var req streamMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message is required")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return
	}

	writeRecord := func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	sessionID, events, err := h.ChatSvc.StreamMessage(ctx, req.SessionID, req.Message, req.IncludeImages)
	if err != nil {
		slog.Error("stream setup failed", "session_id", req.SessionID, "error", err)
		writeRecord(gin.H{"type": "error", "content": "failed to stream response"})
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == agent.EventDone {
				writeRecord(gin.H{"type": "done", "sessionId": sessionID})
				continue
			}
			writeRecord(gin.H{"type": ev.Type, "content": ev.Content})

		case <-ctx.Done():
			return
		}
	}
}

// SendChatMessageAsync queues a full-page generation job instead of blocking
// the request. The worker writes both transcript rows when the job runs.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message is required")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "job queue not configured")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	session, err := h.ChatSvc.EnsureSession(c.Request.Context(), req.SessionID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	job, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), session.SessionID, req.Message, idempoKeyPtr)
	if err != nil {
		slog.Error("job create failed", "session_id", session.SessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			slog.Error("job publish failed", "job_id", job.ID, "error", err)
			common.Fail(c, http.StatusInternalServerError, 50004, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": job.ID, "session_id": session.SessionID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"job": job})
}
