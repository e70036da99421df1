package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"backend/internal/aggregate"
	"backend/internal/config"
	"backend/internal/gemini"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/moderation"
	"backend/internal/ratelimit"
	"backend/internal/repository"
	"backend/internal/retry"
	"backend/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	cfg    *config.Config
	ai     *gemini.Client
	logger *zap.Logger
}

func NewServer(db *sqlx.DB, cfg *config.Config, ai *gemini.Client, logger *zap.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		db:     db,
		cfg:    cfg,
		ai:     ai,
		logger: logger,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	subRepo := repository.NewSubmissionRepository(s.db, s.logger)
	genRepo := repository.NewGenerationRepository(s.db, s.logger)

	policy := retry.DefaultPolicy()
	op := s.cfg.Operational

	summarizer := aggregate.NewSummarizer(subRepo, genRepo, s.cfg.FallbackThemeKeywords,
		op.EmergingGapThreshold, s.cfg.StatisticsCacheTTL(), s.logger)

	moderate := moderation.NewService(s.ai, s.ai.FlashModel(), s.cfg.Prompts.Moderation,
		s.cfg.TextFieldNames(), subRepo, policy, s.logger)

	themes := scheduler.NewThemeScheduler(s.ai, s.ai.ProModel(), s.cfg.Prompts.ThemeExtraction,
		subRepo, genRepo, op.MinSubmissionsForAI, op.ThemeExtractionInterval, policy, s.logger)

	insights := scheduler.NewInsightScheduler(s.ai, s.ai.ProModel(),
		s.cfg.Prompts.InsightSystem, s.cfg.Prompts.InsightUser,
		subRepo, genRepo, summarizer,
		op.MinSubmissionsForAI, op.InsightInterval, s.cfg.InsightCooldown(), policy, s.logger)

	submissionHandler := handler.NewSubmissionHandler(subRepo, moderate, themes, insights, s.logger)
	themeHandler := handler.NewThemeHandler(themes, s.logger)
	insightHandler := handler.NewInsightHandler(insights, s.logger)
	statisticsHandler := handler.NewStatisticsHandler(subRepo, summarizer, s.logger)
	adaptiveHandler := handler.NewAdaptiveHandler(s.ai, s.ai.FlashModel(),
		s.cfg.Prompts.AdaptiveQuestions, summarizer, s.logger)

	// Independent limiters: a small budget for AI-triggering endpoints, a
	// larger one for reads, and a slow multi-minute cap on intake.
	rl := s.cfg.RateLimits
	aiLimit := middleware.RateLimit(ratelimit.NewLimiter(rl.AI.MaxRequests, rl.AI.Window()), s.logger)
	readLimit := middleware.RateLimit(ratelimit.NewLimiter(rl.Read.MaxRequests, rl.Read.Window()), s.logger)
	submitLimit := middleware.RateLimit(ratelimit.NewLimiter(rl.Submit.MaxRequests, rl.Submit.Window()), s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := s.router.Group("/api")
	{
		api.POST("/submissions", submitLimit, submissionHandler.Submit)
		api.POST("/adaptive-questions", aiLimit, adaptiveHandler.GenerateQuestions)
		api.GET("/statistics", readLimit, statisticsHandler.GetStatistics)
		api.POST("/themes/extract", aiLimit, themeHandler.Extract)
		api.POST("/insights/generate", aiLimit, insightHandler.Generate)
		api.GET("/insights/stream", aiLimit, insightHandler.Stream)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
