package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMemberService serves a canned snapshot; only Snapshot is exercised
// by the stream handler.
type stubMemberService struct {
	snapshot broadcast.Snapshot
	err      error
}

func (s stubMemberService) Join(context.Context, memberdomain.JoinCircleRequest) (memberdomain.JoinCircleResponse, error) {
	return memberdomain.JoinCircleResponse{}, nil
}

func (s stubMemberService) SetStatus(context.Context, memberdomain.SetStatusRequest) (memberdomain.Member, error) {
	return memberdomain.Member{}, nil
}

func (s stubMemberService) Heartbeat(context.Context, string, string) error {
	return nil
}

func (s stubMemberService) GetByID(context.Context, string) (memberdomain.Member, error) {
	return memberdomain.Member{}, nil
}

func (s stubMemberService) Snapshot(context.Context, string) (broadcast.Snapshot, error) {
	return s.snapshot, s.err
}

func streamTestServer(t *testing.T, svc memberdomain.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:    engine,
		hub:       broadcast.NewHub(),
		memberSvc: svc,
	}
	engine.GET("/v1/circles/:id/events", srv.StreamCircleEvents)
	return engine
}

func TestStreamRejectsMalformedCircleID(t *testing.T) {
	engine := streamTestServer(t, stubMemberService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/circles/not-a-number/events", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestStreamRejectsInvalidAfterSeq(t *testing.T) {
	engine := streamTestServer(t, stubMemberService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/circles/123456789/events?after_seq=bogus", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamUnknownCircleIsJSONError(t *testing.T) {
	engine := streamTestServer(t, stubMemberService{err: circledomain.ErrNotFound})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/circles/123456789/events", nil)
	engine.ServeHTTP(w, req)

	// The error must arrive as a plain JSON response; nothing of the
	// event stream may have been committed first.
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.NotContains(t, w.Body.String(), "retry:")
}

func TestStreamDeliversSnapshotFirst(t *testing.T) {
	engine := streamTestServer(t, stubMemberService{
		snapshot: broadcast.Snapshot{
			Seq: 0,
			Circle: broadcast.CircleView{
				CircleID: "123456789",
				Name:     "deep work",
				Phase:    "active",
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/circles/123456789/events", nil).WithContext(ctx)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "retry: 2000")
	assert.Contains(t, w.Body.String(), "event: snapshot")
	assert.Contains(t, w.Body.String(), "deep work")
}
