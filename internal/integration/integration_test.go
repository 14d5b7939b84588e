package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
	pgstore "pixeltrivia/internal/infra/postgres"
	"pixeltrivia/internal/infra/postgres/migrations"
	infraredis "pixeltrivia/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestRoomFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	seedQuestionBank(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := pgstore.NewRoomStore(db)
	loader := infraredis.NewQuestionCache(redisClient, pgstore.NewQuestionBank(pool), 5*time.Minute)
	service := app.NewRoomService(store, loader)

	created, err := service.CreateRoom(ctx, "Alice", "knight", app.RoomConfig{
		Category:      "general",
		MaxPlayers:    4,
		TimeLimit:     30,
		QuestionCount: 2,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	joined, err := service.JoinRoom(ctx, created.RoomCode, "Bob", "wizard")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	started, err := service.StartGame(ctx, created.RoomCode, created.PlayerID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.TotalQuestions != 2 {
		t.Fatalf("expected 2 questions, got %d", started.TotalQuestions)
	}
	if started.CurrentQuestion.CorrectAnswerIndex != -1 {
		t.Fatalf("answer key leaked to host payload: %+v", started.CurrentQuestion)
	}

	answer, err := service.SubmitAnswer(ctx, created.RoomCode, joined.PlayerID, 1, 2000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !answer.Accepted || !answer.Correct || answer.ScoreGained != 147 {
		t.Fatalf("expected accepted correct answer worth 147, got %+v", answer)
	}

	// A duplicate submission hits the unique index and is reported, not scored.
	dup, err := service.SubmitAnswer(ctx, created.RoomCode, joined.PlayerID, 1, 500)
	if err != nil {
		t.Fatalf("dup submit: %v", err)
	}
	if dup.Accepted || dup.TotalScore != answer.TotalScore {
		t.Fatalf("expected rejected duplicate keeping score %d, got %+v", answer.TotalScore, dup)
	}

	advance, err := service.NextQuestion(ctx, created.RoomCode, created.PlayerID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if advance.GameOver || advance.NextQuestion == nil {
		t.Fatalf("expected second question, got %+v", advance)
	}

	if _, err := service.SubmitAnswer(ctx, created.RoomCode, joined.PlayerID, 0, 4000); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	final, err := service.NextQuestion(ctx, created.RoomCode, created.PlayerID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !final.GameOver || len(final.FinalScores) != 2 {
		t.Fatalf("expected final scoreboard for 2 players, got %+v", final)
	}
	if final.FinalScores[0].PlayerID != joined.PlayerID {
		t.Fatalf("expected bob leading, got %+v", final.FinalScores)
	}

	snap, err := service.RoomState(ctx, created.RoomCode)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if snap.Room.Status != domain.StatusFinished {
		t.Fatalf("expected finished room, got %s", snap.Room.Status)
	}
}

func TestQuestionCacheWarmsFromPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	seedQuestionBank(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	cache := infraredis.NewQuestionCache(redisClient, pgstore.NewQuestionBank(pool), 5*time.Minute)

	first, err := cache.LoadQuestions(ctx, "general", "", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(first))
	}

	keys, err := redisClient.Keys(ctx, "questions:*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one cache key, got %v", keys)
	}

	second, err := cache.LoadQuestions(ctx, "general", "", 2)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if second[0].Text != first[0].Text {
		t.Fatalf("cached list differs from loaded list")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type seededQuestion struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Difficulty         string   `json:"difficulty"`
}

func seedQuestionBank(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	bank := []seededQuestion{
		{Text: "Which console launched with Super Mario World?", Options: []string{"Genesis", "SNES", "N64"}, CorrectAnswerIndex: 1, Difficulty: "medium"},
		{Text: "What year was Pong released?", Options: []string{"1972", "1976", "1980"}, CorrectAnswerIndex: 0, Difficulty: "medium"},
	}
	data, err := json.Marshal(bank)
	if err != nil {
		t.Fatalf("marshal bank: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_banks (category, data) VALUES (?, ?::jsonb) ON CONFLICT (category) DO UPDATE SET data=EXCLUDED.data`, "general", string(data)); err != nil {
		t.Fatalf("insert bank: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
