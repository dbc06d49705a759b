package server

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/activity"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/auth"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/config"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/course"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/db"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/run"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/stream"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Pool
	Redis  *redis.Client
	Engine *run.Engine

	stopEngine context.CancelFunc
}

// EngineConfig maps the service settings onto the run engine.
func EngineConfig(cfg config.Config) run.Config {
	return run.Config{
		Filter: location.FilterConfig{
			SmoothingFactor:    cfg.SmoothingFactor,
			MaxAccuracyM:       cfg.MaxAccuracyM,
			TeleportThresholdM: cfg.TeleportThresholdM,
		},
		ArrivalRadiusM: cfg.CheckpointRadiusM,
		TickInterval:   cfg.TickInterval,
	}
}

// NewServer wires the HTTP app and starts the run engine loop. Close stops it.
func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var opts []run.Option
	if redisClient != nil {
		opts = append(opts,
			run.WithSource(location.NewRedisSource(redisClient, cfg.FixChannel)),
			run.WithRedis(redisClient, cfg.StateChannel),
		)
	}
	engine := run.NewEngine(EngineConfig(cfg), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Printf("run engine exited: %v", err)
		}
	}()

	s := &Server{
		App:        app,
		Cfg:        cfg,
		Redis:      redisClient,
		Engine:     engine,
		stopEngine: cancel,
	}
	if pg != nil {
		s.DB = pg
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "run_active": s.Engine.IsActive()})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	var deps run.HandlerDeps
	if s.DB != nil {
		courses := course.NewService(s.DB)
		activities := activity.NewService(s.DB, courses.Course, s.Cfg.CheckpointRadiusM)

		deps.LoadCourse = courses.Course
		deps.SaveRun = func(ctx context.Context, runnerID string, final run.State) error {
			_, err := activities.Save(ctx, runnerID, final)
			return err
		}

		auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB), jwtMiddleware)
		course.RegisterRoutes(s.App.Group("/maps"), courses, jwtMiddleware)
		activity.RegisterRoutes(s.App.Group("/activities"), activities, jwtMiddleware)
	}

	run.RegisterRoutes(s.App.Group("/run"), s.Engine, deps, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Engine.Hub())
}

// Close stops the engine loop, abandoning a run in progress, and waits for it.
func (s *Server) Close() {
	s.stopEngine()
	<-s.Engine.Done()
}
