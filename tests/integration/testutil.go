//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/audit"
	"github.com/aether-labs/aether/internal/auth"
	"github.com/aether-labs/aether/internal/billing"
	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/conversation"
	"github.com/aether-labs/aether/internal/insight"
	"github.com/aether-labs/aether/internal/llm"
	"github.com/aether-labs/aether/internal/tier"
	"github.com/aether-labs/aether/internal/users"
)

// Small quotas so exhaustion paths are reachable without hundreds of requests.
const (
	testResponseLimit = 5
	testPremiumLimit  = 1
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	AuthSvc     *auth.Service
	UserSvc     *users.Service
	UsageSvc    *tier.Service
}

var testEnv *TestEnv

// stubLLM is a deterministic in-process stand-in for OpenRouter.
type stubLLM struct{}

func (stubLLM) Chat(_ context.Context, model string, msgs []llm.Message) (*llm.Completion, error) {
	last := ""
	if len(msgs) > 0 {
		last = msgs[len(msgs)-1].Content
	}
	return &llm.Completion{
		Content:      fmt.Sprintf("[%s] reply to: %s", model, last),
		TokensUsed:   42,
		FinishReason: "stop",
	}, nil
}

func (stubLLM) Embed(_ context.Context, text string) ([]float32, error) {
	// Deterministic pseudo-embedding so vector search returns stable results.
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, 1536)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%1000) / 1000
	}
	return vec, nil
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container (pgvector image so the vector extension exists)
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:0.8.1-pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "aether_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/aether_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Auth
	jwtManager := auth.NewJWTManager(
		"test-access-secret-32-chars-long!!",
		"test-refresh-secret-32-chars-long!!",
		15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Usage
	usageSvc := tier.NewService(tier.NewRepository(pool), tier.PolicyFromConfig(config.UsageConfig{
		StandardResponses: testResponseLimit,
		StandardPremium:   testPremiumLimit,
	}))
	usageHandler := tier.NewHandler(usageSvc)

	// LLM stub
	llmClient := stubLLM{}
	models := llm.Models{
		Chat:      "test/chat",
		Premium:   "test/premium",
		Vision:    "test/vision",
		Embedding: "test/embedding",
	}

	// Conversations
	shortTerm := conversation.NewShortTermStore(redisClient, 10, time.Hour)
	convSvc := conversation.NewService(
		conversation.NewPostgresRepository(pool), shortTerm, llmClient, models, usageSvc, nil)
	convHandler := conversation.NewHandler(convSvc)

	// Insights
	generator := insight.NewGenerator(llmClient, models.Chat, 2, 10*time.Millisecond, 5*time.Second)
	insightSvc := insight.NewService(insight.NewRepository(pool), usageSvc, generator,
		convSvc, nil, 30*time.Minute, nil)
	insightHandler := insight.NewHandler(insightSvc)

	// Billing (never reaches Stripe in these tests; webhook rejects unsigned payloads)
	billingSvc := billing.NewService(userSvc, config.StripeConfig{
		SecretKey:     "sk_test_placeholder",
		WebhookSecret: "whsec_test_placeholder",
		PriceLegend:   "price_legend_test",
		PriceVIP:      "price_vip_test",
	}, nil)
	billingHandler := billing.NewHandler(billingSvc)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,
		Me:       authHandler.Me,

		GetUsage: usageHandler.GetUsage,

		CreateConversation: convHandler.Create,
		ListConversations:  convHandler.List,
		GetConversation:    convHandler.Get,
		RenameConversation: convHandler.Rename,
		DeleteConversation: convHandler.Delete,
		ListMessages:       convHandler.ListMessages,
		SendMessage:        convHandler.SendMessage,
		SearchMessages:     convHandler.Search,

		GenerateInsight:  insightHandler.Generate,
		InsightCooldowns: insightHandler.Cooldowns,

		BillingCheckout: billingHandler.Checkout,
		BillingPortal:   billingHandler.Portal,
		BillingWebhook:  billingHandler.Webhook,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		AuthSvc:     authSvc,
		UserSvc:     userSvc,
		UsageSvc:    usageSvc,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

// RegisterAndLogin registers a fresh user and returns its access token.
func RegisterAndLogin(t *testing.T, env *TestEnv, email string) string {
	t.Helper()
	RegisterUser(t, env, email, "password123")
	return LoginUser(t, env, email, "password123")
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
