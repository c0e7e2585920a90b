// Command grovedemo serves a provider with two optional dependencies over
// HTTP. Which dependencies exist, and the provider's lifetime, come from the
// environment (or a .env file):
//
//	FIRST_OPTIONAL_DEPENDENCY=first GROVE_LIFETIME=request go run ./cmd/grovedemo
//	curl localhost:8080/provider
//	{"first":"first","second":null,"request":"..."}
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ARTM2000/grove"
	"github.com/ARTM2000/grove/grovehttp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	MyProvider               = "MY_PROVIDER"
	FirstOptionalDependency  = "FIRST_OPTIONAL_DEPENDENCY"
	SecondOptionalDependency = "SECOND_OPTIONAL_DEPENDENCY"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

type Config struct {
	Addr       string
	LogLevel   string
	Lifetime   grove.Lifetime
	ValuesFile string
	First      string
	Second     string
}

func loadConfig() (*Config, error) {
	// Non-fatal: .env may not exist.
	_ = godotenv.Load()

	lifetime, err := grove.ParseLifetime(env("GROVE_LIFETIME", "singleton"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:       env("GROVE_ADDR", ":8080"),
		LogLevel:   env("GROVE_LOG_LEVEL", "info"),
		Lifetime:   lifetime,
		ValuesFile: os.Getenv("GROVE_VALUES_FILE"),
		First:      os.Getenv(FirstOptionalDependency),
		Second:     os.Getenv(SecondOptionalDependency),
	}, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ---------------------------------------------------------------------------
// Providers
// ---------------------------------------------------------------------------

type Result struct {
	First   any    `json:"first"`
	Second  any    `json:"second"`
	Request string `json:"request,omitempty"`
}

func providers(cfg *Config) ([]grove.Provider, error) {
	var ps []grove.Provider

	if cfg.ValuesFile != "" {
		data, err := os.ReadFile(cfg.ValuesFile)
		if err != nil {
			return nil, err
		}
		values, err := grove.ValuesFromYAML(data)
		if err != nil {
			return nil, err
		}
		ps = append(ps, values...)
	}

	if cfg.First != "" {
		ps = append(ps, grove.Value(FirstOptionalDependency, cfg.First))
	}
	if cfg.Second != "" {
		ps = append(ps, grove.Value(SecondOptionalDependency, cfg.Second))
	}

	ps = append(ps, grove.Factory(MyProvider,
		func(ctx context.Context, first, second any) *Result {
			res := &Result{First: first, Second: second}
			if rc, ok := grove.RequestContextFrom(ctx); ok {
				res.Request = rc.ID()
			}
			return res
		},
		grove.InjectOptional(FirstOptionalDependency),
		grove.InjectOptional(SecondOptionalDependency),
		grove.WithLifetime(cfg.Lifetime),
	))
	return ps, nil
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("grovedemo failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	c := grove.New(grove.WithLogger(logger), grove.WithMetrics(reg), grove.WithOverride())

	ps, err := providers(cfg)
	if err != nil {
		return err
	}
	if err := c.Register(ps...); err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(grovehttp.Middleware(c, grovehttp.WithLogger(logger)))

	r.Get("/provider", func(w http.ResponseWriter, r *http.Request) {
		res, err := grove.ResolveToken[*Result](r.Context(), c, MyProvider)
		if err != nil {
			logger.Error("resolve failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Stringer("lifetime", cfg.Lifetime))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return errors.Join(srv.Shutdown(shutdownCtx), c.Shutdown(shutdownCtx))
}
