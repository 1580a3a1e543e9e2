package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/config"
	"github.com/smallbiznis/gavel/internal/events"
	ledgerdomain "github.com/smallbiznis/gavel/internal/ledger/domain"
	"github.com/smallbiznis/gavel/internal/notification"
	obsmiddleware "github.com/smallbiznis/gavel/internal/observability/logger"
	obstracing "github.com/smallbiznis/gavel/internal/observability/tracing"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
	"github.com/smallbiznis/gavel/internal/providers/pdf"
	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"github.com/smallbiznis/gavel/internal/transport/stream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

const shutdownTimeout = 10 * time.Second

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	registry  sessiondomain.Registry
	streams   *stream.Hub
	queue     *notification.Queue
	schedule  pricetierdomain.Schedule
	ledgerSvc ledgerdomain.Service
	pdf       pdf.Provider
	sink      events.Sink
	eventHub  *events.Hub
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Registry  sessiondomain.Registry
	Streams   *stream.Hub
	Queue     *notification.Queue
	Schedule  pricetierdomain.Schedule
	LedgerSvc ledgerdomain.Service
	PDF       pdf.Provider `optional:"true"`
	Sink      events.Sink  `optional:"true"`
	EventHub  *events.Hub  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	sink := p.Sink
	if sink == nil {
		sink = events.Nop{}
	}
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       log.Named("http.server"),
		clock:     p.Clock,
		registry:  p.Registry,
		streams:   p.Streams,
		queue:     p.Queue,
		schedule:  p.Schedule,
		ledgerSvc: p.LedgerSvc,
		pdf:       p.PDF,
		sink:      sink,
		eventHub:  p.EventHub,
	}

	svc.registerSessionRoutes()
	svc.registerPricingRoutes()
	svc.registerBillingRoutes()
	svc.registerEventRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerSessionRoutes() {
	users := s.engine.Group("/v1/users")

	users.GET("", s.ListUsers)
	users.GET("/:identity", s.GetUser)
	users.GET("/:identity/stream", s.StreamLogin)
	users.POST("/:identity/logout", s.Logout)
	users.POST("/:identity/disconnect", s.Disconnect)
	users.POST("/:identity/messages", s.PostMessage)
	users.POST("/:identity/messages/send", s.SendMessage)
}

func (s *Server) registerPricingRoutes() {
	tiers := s.engine.Group("/v1/price-tiers")

	tiers.GET("", s.ListPriceTiers)
	tiers.POST("", s.CreatePriceTier)
	tiers.DELETE("", s.DeletePriceTier)
}

func (s *Server) registerBillingRoutes() {
	bills := s.engine.Group("/v1/bills")

	bills.POST("/:identity/charges", s.BillAuction)
	bills.GET("/:identity", s.GetBill)
	bills.GET("/:identity/pdf", s.GetBillPDF)
}

func (s *Server) registerEventRoutes() {
	evts := s.engine.Group("/v1/events")

	evts.POST("", s.RelayEvent)
	evts.GET("/stream", s.StreamEvents)
}
