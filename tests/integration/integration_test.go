//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/app"
	"github.com/xenking/cashflow-pos/internal/domain/auth"
	"github.com/xenking/cashflow-pos/internal/storage/postgres"
	"github.com/xenking/cashflow-pos/internal/wire"
)

const (
	testAPIKey = "integration-test-key"
	testPepper = "test-pepper-for-integration"
)

var (
	baseURL    string
	httpClient *http.Client
	pool       *pgxpool.Pool
)

// Response types are defined locally so the assertions read the wire format
// rather than the server's types.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type productResponse struct {
	ProductID         int     `json:"productId"`
	BarCode           int     `json:"barCode"`
	Name              string  `json:"name"`
	VAT               float64 `json:"vat"`
	Keyword           string  `json:"keyword"`
	Price             float64 `json:"price"`
	Discount          float64 `json:"discount"`
	DiscountFrom      int64   `json:"discountFrom"`
	DiscountUntil     int64   `json:"discountUntil"`
	BonusOnlyDiscount bool    `json:"bonusOnlyDiscount"`
	StandalonePrice   float64 `json:"standalonePrice"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type transactionResponse struct {
	ID         string            `json:"id"`
	Timestamp  int64             `json:"timestamp"`
	Total      float64           `json:"total"`
	Discount   float64           `json:"discount"`
	Items      []productResponse `json:"items"`
	CustomerNo *int              `json:"customerNo"`
}

type salesResponse struct {
	Sales []transactionResponse `json:"sales"`
}

type customerResponse struct {
	CustomerNo int    `json:"customerNo"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	databaseURL, stopPostgres := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pos",
			"POSTGRES_PASSWORD": "pos",
			"POSTGRES_DB":       "pos",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, "5432/tcp", "postgres://pos:pos@%s/pos?sslmode=disable")
	defer stopPostgres()

	redisAddr, stopRedis := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}, "6379/tcp", "%s")
	defer stopRedis()

	registry := httptest.NewServer(customerRegistry())
	defer registry.Close()

	var err error
	pool, err = postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := seed(ctx); err != nil {
		log.Fatalf("seed: %v", err)
	}

	addr, err := freeAddr()
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	cfg := &app.Config{
		Addr:         addr,
		DatabaseURL:  databaseURL,
		APIKeyPepper: testPepper,
		Registry: app.RegistryConfig{
			CustomerURL: registry.URL + "/rest",
			Timeout:     5 * time.Second,
		},
		Cache:     app.CacheConfig{RedisAddr: redisAddr, TTL: 30 * time.Second},
		RateLimit: app.RateLimitConfig{Max: 10000, Window: time.Minute},
		CORS:      app.CORSConfig{Origins: []string{"*"}},
		Graceful:  app.GracefulConfig{ShutdownTimeout: 10 * time.Second},
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := zap.NewNop()
	srvCtx, stop := context.WithCancel(zctx.Base(ctx, lg))
	done := make(chan error, 1)
	go func() {
		done <- app.Run(srvCtx, lg, noopTelemetry{}, cfg)
	}()

	baseURL = "http://" + addr
	httpClient = &http.Client{Timeout: 10 * time.Second}
	if err := waitReady(ctx, done); err != nil {
		log.Fatalf("wait for api: %v", err)
	}
	log.Printf("API available at %s", baseURL)

	result := m.Run()

	stop()
	if err := <-done; err != nil {
		log.Printf("api server: %v", err)
	}
	return result
}

// startContainer runs req and formats the mapped port's host:port into
// format. The returned func terminates the container.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port, format string) (string, func()) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("start %s: %v", req.Image, err)
	}
	terminate := func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate %s: %v", req.Image, err)
		}
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		log.Fatalf("host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		terminate()
		log.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf(format, net.JoinHostPort(host, mapped.Port())), terminate
}

// seed loads the shipped product seed file and an admin key, the same way
// cmd/seed-db does.
func seed(ctx context.Context) error {
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	data, err := os.ReadFile("../../db/seed/products.json")
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	products, err := wire.DecodeProducts(data)
	if err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	if err := postgres.NewProductRepository(pool).Upsert(ctx, products...); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}

	_, err = postgres.NewAPIKeyRepository(pool).Save(ctx, auth.APIKeyInfo{
		KeyHash: auth.HashKey([]byte(testPepper), testAPIKey),
		Name:    "integration",
		Scopes:  []string{auth.ScopeAdmin},
	})
	return err
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// waitReady polls /readyz until the server reports ready or exits.
func waitReady(ctx context.Context, done <-chan error) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for readiness (last: %s): %w", lastErr, ctx.Err())
		case err := <-done:
			return fmt.Errorf("server exited: %v", err)
		case <-ticker.C:
			resp, err := httpClient.Get(baseURL + "/readyz")
			if err != nil {
				lastErr = err.Error()
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
}

// HTTP helpers.

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}

	return resp
}

func doPost(t *testing.T, path, body string) *http.Response {
	t.Helper()
	return doPostWithAuth(t, path, body, "")
}

func doPostWithAuth(t *testing.T, path, body, apiKey string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}

	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("expected %d, got %d (%q)", want, resp.StatusCode, body.Message)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return v
}
