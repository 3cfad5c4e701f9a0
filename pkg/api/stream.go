package api

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// streamPolicyAnalysis handles GET /api/cases/:id/stream. Policy analysis
// progress is delivered as SSE, one event per payload, with the payload's
// discriminator as the SSE event name.
func (s *Server) streamPolicyAnalysis(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	ch, err := s.orch.StreamPolicyAnalysis(c.Request.Context(), c.Param("id"), refresh)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-ch
		if !ok {
			return false
		}
		sse.Encode(w, sse.Event{Event: eventName(msg), Data: msg})
		return true
	})
}

// eventName pulls the discriminator out of a marshaled event.
func eventName(msg json.RawMessage) string {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Event == "" {
		return "message"
	}
	return envelope.Event
}
