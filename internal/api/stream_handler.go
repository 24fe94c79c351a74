package api

import (
	"io"
	"strconv"

	"ibisync/internal/service"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StreamHandler struct {
	hub *service.Hub
}

func NewStreamHandler(hub *service.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// WatchEvents streams queue and customs lifecycle events over SSE.
// Reconnecting clients pass last_seq to replay what they missed; clients
// that only care about operator alerts pass critical_only=true.
func (h *StreamHandler) WatchEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	var lastSeq int64
	if s := c.Query("last_seq"); s != "" {
		lastSeq, _ = strconv.ParseInt(s, 10, 64)
	}
	criticalOnly := c.Query("critical_only") == "true"

	logger.Info("stream client connected",
		zap.String("operator", service.GetOperator(c.Request.Context())),
		zap.String("ip", c.ClientIP()),
		zap.Int64("last_seq", lastSeq),
		zap.Bool("critical_only", criticalOnly),
	)

	client := &service.Client{
		Send:         make(chan v1.SyncEvent, 128),
		CriticalOnly: criticalOnly,
	}

	h.hub.Register <- client
	defer func() {
		h.hub.Unregister <- client
	}()

	maxSentSeq := lastSeq
	if lastSeq > 0 {
		events, ok := h.hub.GetSince(lastSeq)
		if !ok {
			// Gap in the replay buffer; the client must refetch the
			// queue and submission listings before trusting the stream.
			c.SSEvent("reset", "sequence_too_old")
			maxSentSeq = 0
		}
		for _, ev := range events {
			if criticalOnly && !ev.Critical() {
				continue
			}
			c.SSEvent("message", ev)
			maxSentSeq = ev.Seq
		}
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				return false
			}
			if ev.Type == v1.EventPing {
				c.SSEvent("ping", "pong")
				return true
			}
			// Drop anything already replayed during catch-up.
			if ev.Seq <= maxSentSeq {
				return true
			}
			c.SSEvent("message", ev)
			maxSentSeq = ev.Seq
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
