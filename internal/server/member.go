package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
)

type joinCircleRequest struct {
	InviteCode string `json:"invite_code"`
}

func (s *Server) JoinCircle(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if !s.joinLimiter.AllowUser(c.Request.Context(), caller.UserID) {
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req joinCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.Join(c.Request.Context(), memberdomain.JoinCircleRequest{
		InviteCode:  req.InviteCode,
		UserID:      caller.UserID,
		DisplayName: caller.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setMemberStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetMemberStatus(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req setMemberStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.memberSvc.SetStatus(c.Request.Context(), memberdomain.SetStatusRequest{
		MemberID:    c.Param("id"),
		Status:      memberdomain.Status(strings.TrimSpace(req.Status)),
		RequestedBy: caller.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}

func (s *Server) MemberHeartbeat(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.memberSvc.Heartbeat(c.Request.Context(), c.Param("id"), caller.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetMember(c *gin.Context) {
	member, err := s.memberSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}
