package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"planai-api/ai"
	"planai-api/api"
	"planai-api/config"
	"planai-api/domain"
	"planai-api/ingest"
	"planai-api/mirror"
	"planai-api/storage"
	"planai-api/store"
)

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	snapshotter, err := store.NewSnapshotter(dataDir, logger)
	if err != nil {
		logger.Fatalf("snapshot: %v", err)
	}
	state, err := snapshotter.Load()
	if err != nil {
		logger.Fatalf("snapshot: %v", err)
	}

	settings := store.NewSettingsStore(dataDir, domain.Settings{
		Provider: cfg.AI.Provider,
		Model:    cfg.AI.Model,
		Endpoint: cfg.AI.Endpoint,
		Features: cfg.AI.Features,
	}, logger)

	st := store.New(logger,
		store.WithState(state),
		store.WithPersister(snapshotter),
	)

	if connStr := os.Getenv("SYNC_CONNECTION_STRING"); connStr != "" {
		tableName := os.Getenv("SYNC_TABLE")
		queueName := os.Getenv("SYNC_QUEUE")
		if tableName == "" || queueName == "" {
			logger.Fatal("SYNC_TABLE and SYNC_QUEUE required when sync is enabled")
		}
		remote, err := storage.NewRemote(connStr, tableName, queueName, st)
		if err != nil {
			logger.Fatalf("sync: %v", err)
		}
		outbox, err := mirror.NewOutbox(mirror.Config{Dir: dataDir}, remote, logger)
		if err != nil {
			logger.Fatalf("sync: %v", err)
		}
		defer outbox.Close()
		st.AttachRecorder(outbox)
	}

	var rc *redis.Client
	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc = redis.NewClient(redisOptions(redisConn))
		ttl := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				logger.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)
	}

	classifier := ai.Classifier(&settingsClassifier{settings: settings, cfg: cfg.AI})
	if rc != nil {
		classifier = ai.NewCachingClassifier(classifier, rc, 7*24*time.Hour)
	}
	transcriber := ai.NewOpenAITranscriber(ai.Options{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   cfg.AI.TranscriptionModel,
		Timeout: cfg.AI.CallTimeout,
	})

	pipeline := ingest.New(
		ingest.StoreBridge{Store: st},
		transcriber,
		classifier,
		logger,
		ingest.WithStageTimeout(cfg.AI.CallTimeout),
	)
	defer pipeline.Wait()

	var analyzer api.Analyzer
	if cfg.AI.AnalysisEndpoint != "" {
		analyzer = ai.NewAnalyzer(cfg.AI.AnalysisEndpoint, cfg.AI.APIKey(), ai.Options{Timeout: cfg.AI.CallTimeout})
	}

	auth := buildAuth(logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("planai"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Store:    st,
		Settings: settings,
		Pipeline: pipeline,
		Analyzer: analyzer,
		Auth:     auth,
		Deduper:  deduper,
		Logger:   logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	// Deferred pipeline.Wait and outbox.Close drain in-flight submissions
	// and the mirror WAL before the process exits.
}

func buildAuth(logger *log.Logger) *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	domainName := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domainName == "" {
		logger.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		logger.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domainName+"/")
}

// redisOptions accepts either a redis URL or an Azure-style comma separated
// connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// settingsClassifier builds the provider adapter on each call so a settings
// change takes effect without a restart. Adapter construction is cheap.
type settingsClassifier struct {
	settings *store.SettingsStore
	cfg      config.AI
}

func (s *settingsClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	current := s.settings.Settings()
	opts := ai.Options{
		APIKey:  s.cfg.APIKey(),
		Model:   current.Model,
		BaseURL: current.Endpoint,
		Timeout: s.cfg.CallTimeout,
	}
	c, err := ai.NewClassifier(current.Provider, opts)
	if err != nil {
		return domain.Classification{}, err
	}
	return c.Classify(ctx, transcription)
}
