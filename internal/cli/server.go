package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/config"
	"pixeltrivia/internal/infra/memory"
	pgstore "pixeltrivia/internal/infra/postgres"
	redisinfra "pixeltrivia/internal/infra/redis"
	"pixeltrivia/internal/scoring"
	transport "pixeltrivia/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the room service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.RoomStore = memory.NewRoomStore()
	var loader app.QuestionLoader = memory.NewQuestionBank(memory.SampleQuestions())
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		store = pgstore.NewRoomStore(bunDB)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgstore.NewQuestionBank(pool)
	}

	if redisClient != nil {
		cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
		loader = redisinfra.NewQuestionCache(redisClient, loader, cacheTTL)
	}

	limitRequests := cfg.RateLimit.Requests
	if limitRequests <= 0 {
		limitRequests = 60
	}
	limitWindow := config.TTLDuration(cfg.RateLimit.Window, time.Minute)
	var limiter transport.Limiter = memory.NewRateLimiter(limitRequests, limitWindow)
	if redisClient != nil {
		limiter = redisinfra.NewRateLimiter(redisClient, limitRequests, limitWindow)
	}

	opts := []app.Option{}
	if cfg.Scoring.BasePoints > 0 {
		opts = append(opts, app.WithScoring(scoring.Config{
			BasePoints:    cfg.Scoring.BasePoints,
			MaxTimeBonus:  cfg.Scoring.MaxTimeBonus,
			ReferenceTime: cfg.Scoring.ReferenceTime,
		}))
	}
	service := app.NewRoomService(store, loader, opts...)

	mux := http.NewServeMux()
	api := transport.NewAPI(service, limiter)
	api.Register(mux)
	wsHandler := transport.NewWSHandler(service)
	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting pixeltrivia room service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
