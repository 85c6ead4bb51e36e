package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shellbound/focuscircle/internal/broadcast"
	"github.com/shellbound/focuscircle/internal/circle"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/circlelock"
	"github.com/shellbound/focuscircle/internal/clock"
	"github.com/shellbound/focuscircle/internal/config"
	"github.com/shellbound/focuscircle/internal/identity"
	"github.com/shellbound/focuscircle/internal/member"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/shellbound/focuscircle/internal/migration"
	"github.com/shellbound/focuscircle/internal/observability"
	obsmiddleware "github.com/shellbound/focuscircle/internal/observability/logger"
	"github.com/shellbound/focuscircle/internal/ratelimit"
	"github.com/shellbound/focuscircle/internal/timer"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	broadcast.Module,
	circlelock.Module,
	identity.Module,
	ratelimit.Module,
	circle.Module,
	member.Module,
	migration.Module,
	timer.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	clock       clock.Clock
	resolver    identity.Resolver
	circleSvc   circledomain.Service
	memberSvc   memberdomain.Service
	authority   *timer.Authority
	hub         *broadcast.Hub
	joinLimiter *ratelimit.JoinLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	Clock       clock.Clock
	Resolver    identity.Resolver
	CircleSvc   circledomain.Service
	MemberSvc   memberdomain.Service
	Authority   *timer.Authority
	Hub         *broadcast.Hub
	JoinLimiter *ratelimit.JoinLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		clock:       p.Clock,
		resolver:    p.Resolver,
		circleSvc:   p.CircleSvc,
		memberSvc:   p.MemberSvc,
		authority:   p.Authority,
		hub:         p.Hub,
		joinLimiter: p.JoinLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.AuthMiddleware())

	v1.POST("/circles", s.CreateCircle)
	v1.GET("/circles", s.ListCircles)
	v1.GET("/circles/:id", s.GetCircle)
	v1.POST("/circles/join", s.JoinCircle)
	v1.POST("/circles/:id/end", s.EndCircle)
	v1.POST("/circles/:id/cancel", s.CancelCircle)
	v1.GET("/circles/:id/events", s.StreamCircleEvents)

	v1.POST("/members/:id/status", s.SetMemberStatus)
	v1.POST("/members/:id/heartbeat", s.MemberHeartbeat)
	v1.GET("/members/:id", s.GetMember)
}
