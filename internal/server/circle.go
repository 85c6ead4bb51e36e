package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/pkg/db/pagination"
)

type createCircleRequest struct {
	Name            string   `json:"name"`
	DurationSeconds int64    `json:"duration_seconds"`
	ScheduledStart  string   `json:"scheduled_start"`
	CommitmentLevel string   `json:"commitment_level"`
	BlockingEnabled bool     `json:"blocking_enabled"`
	BlockingPreset  string   `json:"blocking_preset"`
	BlockedApps     []string `json:"blocked_apps"`

	ShowFocusedMembers *bool `json:"show_focused_members"`
	ShowEarlyLeavers   *bool `json:"show_early_leavers"`
	ShowExitsToGroup   *bool `json:"show_exits_to_group"`
}

func (s *Server) CreateCircle(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var scheduledStart *time.Time
	if raw := strings.TrimSpace(req.ScheduledStart); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("scheduled_start", "invalid_scheduled_start", "invalid scheduled_start"))
			return
		}
		parsed = parsed.UTC()
		scheduledStart = &parsed
	}

	// Disclosure flags default to visible when omitted.
	visibility := circledomain.Visibility{
		ShowFocusedMembers: true,
		ShowEarlyLeavers:   true,
		ShowExitsToGroup:   true,
	}
	if req.ShowFocusedMembers != nil {
		visibility.ShowFocusedMembers = *req.ShowFocusedMembers
	}
	if req.ShowEarlyLeavers != nil {
		visibility.ShowEarlyLeavers = *req.ShowEarlyLeavers
	}
	if req.ShowExitsToGroup != nil {
		visibility.ShowExitsToGroup = *req.ShowExitsToGroup
	}

	resp, err := s.circleSvc.Create(c.Request.Context(), circledomain.CreateCircleRequest{
		Name:            strings.TrimSpace(req.Name),
		DurationSeconds: req.DurationSeconds,
		ScheduledStart:  scheduledStart,
		CommitmentLevel: circledomain.CommitmentLevel(strings.TrimSpace(req.CommitmentLevel)),
		BlockingEnabled: req.BlockingEnabled,
		BlockingPreset:  circledomain.BlockingPreset(strings.TrimSpace(req.BlockingPreset)),
		BlockedApps:     req.BlockedApps,
		Visibility:      visibility,
		CreatedBy:       caller.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCircles(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.circleSvc.List(c.Request.Context(), circledomain.ListCircleRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
		CreatedBy: caller.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCircle(c *gin.Context) {
	circle, err := s.circleSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": circle})
}

func (s *Server) EndCircle(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	circleID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, circledomain.ErrInvalidID)
		return
	}

	circle, err := s.authority.EndEarly(c.Request.Context(), circleID, caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": circle})
}

func (s *Server) CancelCircle(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	circleID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, circledomain.ErrInvalidID)
		return
	}

	circle, err := s.authority.Cancel(c.Request.Context(), circleID, caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": circle})
}
