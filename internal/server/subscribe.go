package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
)

// StreamCircleEvents serves a circle's ordered event stream over SSE.
// The subscriber first receives a snapshot of current state, then live
// events strictly after the snapshot's watermark. ?after_seq= lets a
// reconnecting client start replay from its last seen sequence; gaps
// beyond the retained buffer are covered by the snapshot.
func (s *Server) StreamCircleEvents(c *gin.Context) {
	circleID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, circledomain.ErrInvalidID)
		return
	}

	var afterSeq uint64
	if raw := strings.TrimSpace(c.Query("after_seq")); raw != "" {
		afterSeq, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			AbortWithError(c, newValidationError("after_seq", "invalid_after_seq", "invalid after_seq"))
			return
		}
	}

	// Subscribe before building the snapshot so nothing published in
	// between is lost; duplicates are dropped by the seq watermark.
	subscription, backlog, err := s.hub.Subscribe(circleID, afterSeq)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	snapshot, err := s.memberSvc.Snapshot(c.Request.Context(), circleID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Refuse before committing the response status; once the 200 and
	// stream headers are out there is no error to report.
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	if err := writeSnapshotEvent(writer, snapshot); err != nil {
		return
	}

	delivered := snapshot.Seq
	for _, event := range backlog {
		if event.Seq <= delivered {
			continue
		}
		if err := writeCircleEvent(writer, event); err != nil {
			return
		}
		delivered = event.Seq
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if event.Seq <= delivered {
				continue
			}
			if err := writeCircleEvent(writer, event); err != nil {
				return
			}
			delivered = event.Seq
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSnapshotEvent(w io.Writer, snapshot broadcast.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func writeCircleEvent(w io.Writer, event broadcast.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
