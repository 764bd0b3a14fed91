//go:build integration

package integration

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/course-sync/internal/app"
	"github.com/bissquit/course-sync/internal/config"
	"github.com/bissquit/course-sync/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testApp        *app.App
	testServer     *httptest.Server
	testValidator  *testutil.OpenAPIValidator
	testDB         *pgxpool.Pool
	testSubscriber *testutil.Subscriber
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// Short retry delays keep eviction scenarios fast.
const (
	testBaseDelay = 50 * time.Millisecond
	testMaxDelay  = 200 * time.Millisecond
)

// newTestClient creates a client validating every response against the OpenAPI spec.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClientWithValidator(t, testServer.URL, testValidator)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	if err := pgContainer.Migrate("../../migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	testSubscriber = testutil.NewSubscriber(http.StatusOK)
	defer testSubscriber.Close()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		// The periodic driver is off: tests drain the queue through
		// POST /api/v1/sync/process to control how many attempts happen.
		Sync: config.SyncConfig{
			MaxAttempts:     3,
			BaseDelay:       testBaseDelay,
			MaxDelay:        testMaxDelay,
			WebhookTimeout:  2 * time.Second,
			BatchSize:       10,
			WebhookURLs:     testSubscriber.URL,
			NumWorkers:      1,
			ShutdownTimeout: 5 * time.Second,
		},
		Monitor: config.MonitorConfig{
			WriteAttempts:  3,
			WriteBaseDelay: 10 * time.Millisecond,
		},
	}

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
