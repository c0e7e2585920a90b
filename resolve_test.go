package grove

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("before build returns ErrNotBuilt", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Constructor(newTestLogger))

		_, err := c.Resolve(ctx, TypeOf[*testLogger]())
		assert.ErrorIs(t, err, ErrNotBuilt)
	})

	t.Run("singleton returns same instance and calls factory once", func(t *testing.T) {
		var calls counter
		c := New()
		mustRegister(t, c, Factory("logger", func() *testLogger {
			calls.inc()
			return &testLogger{}
		}))
		mustBuild(t, c)

		v1 := mustResolve(t, c, "logger")
		v2 := mustResolve(t, c, "logger")

		assert.Same(t, v1, v2)
		assert.Equal(t, 1, calls.get())
	})

	t.Run("lazy singleton is created on first resolve", func(t *testing.T) {
		var calls counter
		c := New(WithLazySingletons())
		mustRegister(t, c, Factory("logger", func() *testLogger {
			calls.inc()
			return &testLogger{}
		}))
		mustBuild(t, c)
		assert.Equal(t, 0, calls.get())

		mustResolve(t, c, "logger")
		mustResolve(t, c, "logger")
		assert.Equal(t, 1, calls.get())
	})

	t.Run("transient returns different instances", func(t *testing.T) {
		var calls counter
		c := New()
		mustRegister(t, c, Factory("logger", func() *testLogger {
			calls.inc()
			return &testLogger{}
		}, WithLifetime(Transient)))
		mustBuild(t, c)

		v1 := mustResolve(t, c, "logger")
		v2 := mustResolve(t, c, "logger")
		v3 := mustResolve(t, c, "logger")

		assert.NotSame(t, v1, v2)
		assert.NotSame(t, v2, v3)
		assert.Equal(t, 3, calls.get())
	})

	t.Run("request scoped is shared within a context only", func(t *testing.T) {
		var calls counter
		c := New()
		mustRegister(t, c, Factory("logger", func() *testLogger {
			calls.inc()
			return &testLogger{}
		}, WithLifetime(Request)))
		mustBuild(t, c)

		rc1 := c.NewRequestContext("one")
		rc2 := c.NewRequestContext("two")
		defer rc1.Close(ctx)
		defer rc2.Close(ctx)

		a1 := mustResolve(t, rc1, "logger")
		a2 := mustResolve(t, rc1, "logger")
		b1 := mustResolve(t, rc2, "logger")

		assert.Same(t, a1, a2)
		assert.NotSame(t, a1, b1)
		assert.Equal(t, 2, calls.get())
	})

	t.Run("request scoped through context.Context", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Factory("logger", newTestLogger, WithLifetime(Request)))
		mustBuild(t, c)

		rc := c.NewRequestContext("")
		defer rc.Close(ctx)
		rctx := WithRequestContext(ctx, rc)

		v1, err := c.Resolve(rctx, "logger")
		require.NoError(t, err)
		v2, err := rc.Resolve(ctx, "logger")
		require.NoError(t, err)

		assert.Same(t, v1, v2)
	})

	t.Run("request scoped without a context is fresh per call", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Factory("logger", newTestLogger, WithLifetime(Request)))
		mustBuild(t, c)

		assert.NotSame(t, mustResolve(t, c, "logger"), mustResolve(t, c, "logger"))
	})

	t.Run("request scoped shared by dependents of one resolution", func(t *testing.T) {
		c := New()
		mustRegister(t, c,
			Factory("logger", newTestLogger, WithLifetime(Request)),
			Factory("order", newTestOrderService, Inject("logger"), WithLifetime(Transient)),
			Factory("pair", newPair, Inject("order"), Inject("logger"), WithLifetime(Transient)),
		)
		mustBuild(t, c)

		p := mustResolve(t, c, "pair").(*pair)
		assert.Same(t, p.First.(*testOrderService).Logger, p.Second)
	})

	t.Run("deep dependency chain fully resolved", func(t *testing.T) {
		c := New()
		mustRegister(t, c,
			Constructor(newTestLogger),
			Constructor(newTestConfig),
			Constructor(newTestDatabase),
			Constructor(newTestUserRepo),
			Constructor(newTestUserService),
		)
		mustBuild(t, c)

		svc, err := Resolve[*testUserService](ctx, c)
		require.NoError(t, err)
		require.NotNil(t, svc.Repo)
		require.NotNil(t, svc.Repo.DB)
		require.NotNil(t, svc.Repo.DB.Config)
		assert.Equal(t, "postgres://localhost", svc.Repo.DB.Config.DSN)
		assert.NotNil(t, svc.Logger)
	})

	t.Run("singletons share instances across dependents", func(t *testing.T) {
		c := New()
		mustRegister(t, c,
			Constructor(newTestLogger),
			Constructor(newTestConfig),
			Constructor(newTestDatabase),
			Constructor(newTestUserRepo),
			Constructor(newTestUserService),
		)
		mustBuild(t, c)

		svc, _ := Resolve[*testUserService](ctx, c)
		repo, _ := Resolve[*testUserRepo](ctx, c)
		logger, _ := Resolve[*testLogger](ctx, c)

		assert.Same(t, logger, svc.Logger)
		assert.Same(t, logger, repo.Logger)
		assert.Same(t, logger, repo.DB.Logger)
	})

	t.Run("singleton depending on transient captures one instance", func(t *testing.T) {
		var calls counter
		c := New()
		mustRegister(t, c,
			Constructor(func() *testLogger {
				return &testLogger{Prefix: fmt.Sprintf("v%d", calls.inc())}
			}, WithLifetime(Transient)),
			Constructor(newTestOrderService),
		)
		mustBuild(t, c)

		s1, _ := Resolve[*testOrderService](ctx, c)
		s2, _ := Resolve[*testOrderService](ctx, c)

		assert.Same(t, s1, s2)
		assert.Equal(t, "v1", s1.Logger.Prefix)
	})

	t.Run("unregistered token returns ErrProviderNotFound", func(t *testing.T) {
		c := New()
		mustBuild(t, c)

		_, err := c.Resolve(ctx, "missing")
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("value provider ignores lifetime", func(t *testing.T) {
		cfg := &testConfig{DSN: "x"}
		c := New()
		mustRegister(t, c, Value("cfg", cfg))
		mustBuild(t, c)

		assert.Same(t, cfg, mustResolve(t, c, "cfg"))
	})

	t.Run("symbol tokens are compared by identity", func(t *testing.T) {
		a, b := NewSymbol("dup"), NewSymbol("dup")
		c := New()
		mustRegister(t, c, Value(a, "a"), Value(b, "b"))
		mustBuild(t, c)

		assert.Equal(t, "a", mustResolve(t, c, a))
		assert.Equal(t, "b", mustResolve(t, c, b))
	})

	t.Run("non comparable token is rejected", func(t *testing.T) {
		c := New()
		mustBuild(t, c)

		_, err := c.Resolve(ctx, []string{"x"})
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("after shutdown returns ErrAlreadyShutdown", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Value("v", 1))
		mustBuild(t, c)
		require.NoError(t, c.Shutdown(ctx))

		_, err := c.Resolve(ctx, "v")
		assert.ErrorIs(t, err, ErrAlreadyShutdown)
	})
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestResolve_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("factory error is propagated unchanged", func(t *testing.T) {
		initErr := errors.New("init failed")
		c := New()
		mustRegister(t, c,
			Factory("cfg", func() (*testConfig, error) { return nil, initErr }, WithLifetime(Transient)),
			Factory("db", newTestDatabase, Inject("cfg"), InjectOptional("logger"), WithLifetime(Transient)),
		)
		mustBuild(t, c)

		_, err := c.Resolve(ctx, "db")
		assert.Same(t, initErr, err)
	})

	t.Run("singleton factory error fails Build", func(t *testing.T) {
		initErr := errors.New("init failed")
		c := New()
		mustRegister(t, c, Factory("cfg", func() (*testConfig, error) { return nil, initErr }))

		err := c.Build(ctx)
		assert.ErrorIs(t, err, initErr)
		assert.Contains(t, err.Error(), "constructing cfg")
	})

	t.Run("failed singleton is retried on next resolve", func(t *testing.T) {
		var calls counter
		c := New(WithLazySingletons())
		mustRegister(t, c, Factory("cfg", func() (*testConfig, error) {
			if calls.inc() == 1 {
				return nil, errors.New("transient failure")
			}
			return &testConfig{}, nil
		}))
		mustBuild(t, c)

		_, err := c.Resolve(ctx, "cfg")
		require.Error(t, err)
		mustResolve(t, c, "cfg")
		assert.Equal(t, 2, calls.get())
	})

	t.Run("type mismatch between dependency and parameter", func(t *testing.T) {
		c := New(WithLazySingletons())
		mustRegister(t, c,
			Value("cfg", "not a config"),
			Factory("db", newTestDatabase, Inject("cfg"), InjectOptional("logger")),
		)
		mustBuild(t, c)

		_, err := c.Resolve(ctx, "db")
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("generic helper type mismatch", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Value("cfg", "plain string"))
		mustBuild(t, c)

		_, err := ResolveToken[*testConfig](ctx, c, "cfg")
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("canceled context stops resolution", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Factory("logger", newTestLogger, WithLifetime(Transient)))
		mustBuild(t, c)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Resolve(cctx, "logger")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed request context", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Factory("logger", newTestLogger, WithLifetime(Request)))
		mustBuild(t, c)

		rc := c.NewRequestContext("done")
		require.NoError(t, rc.Close(ctx))

		_, err := rc.Resolve(ctx, "logger")
		assert.ErrorIs(t, err, ErrRequestContextClosed)
	})

	t.Run("request context of another container", func(t *testing.T) {
		c1, c2 := New(), New()
		mustRegister(t, c2, Factory("logger", newTestLogger, WithLifetime(Request)))
		mustBuild(t, c1)
		mustBuild(t, c2)

		rc := c1.NewRequestContext("")
		_, err := c2.Resolve(WithRequestContext(ctx, rc), "logger")
		assert.ErrorIs(t, err, ErrForeignRequestContext)
	})
}

// ---------------------------------------------------------------------------
// Factories and classes
// ---------------------------------------------------------------------------

type testInitClass struct {
	Logger *testLogger
	Config *testConfig

	initialized bool
}

func (c *testInitClass) Init(ctx context.Context) error {
	if c.Logger == nil {
		return errors.New("logger missing")
	}
	c.initialized = true
	return nil
}

func TestResolve_Strategies(t *testing.T) {
	ctx := context.Background()

	t.Run("factory receives the resolution context", func(t *testing.T) {
		type key struct{}
		c := New(WithLazySingletons())
		mustRegister(t, c, Factory("from-ctx", func(ctx context.Context, log *testLogger) string {
			return ctx.Value(key{}).(string) + ":" + log.Prefix
		}, Inject("logger")), Factory("logger", newTestLogger))
		mustBuild(t, c)

		v, err := c.Resolve(context.WithValue(ctx, key{}, "req"), "from-ctx")
		require.NoError(t, err)
		assert.Equal(t, "req:app", v)
	})

	t.Run("class fields assigned in order and Init called", func(t *testing.T) {
		c := New()
		mustRegister(t, c,
			Constructor(newTestLogger),
			Class[testInitClass]("svc", Inject(TypeOf[*testLogger]()), InjectOptional(TypeOf[*testConfig]())),
		)
		mustBuild(t, c)

		svc, err := ResolveToken[*testInitClass](ctx, c, "svc")
		require.NoError(t, err)
		assert.True(t, svc.initialized)
		assert.NotNil(t, svc.Logger)
		assert.Nil(t, svc.Config)
	})

	t.Run("class Init error is propagated", func(t *testing.T) {
		c := New(WithLazySingletons())
		mustRegister(t, c, Class[testInitClass]("svc", InjectOptional("logger")))
		mustBuild(t, c)

		_, err := c.Resolve(ctx, "svc")
		assert.EqualError(t, err, "logger missing")
	})

	t.Run("interface result", func(t *testing.T) {
		c := New()
		mustRegister(t, c, Constructor(func() testService {
			return &testUserService{Logger: &testLogger{Prefix: "iface"}}
		}))
		mustBuild(t, c)

		svc, err := Resolve[testService](ctx, c)
		require.NoError(t, err)
		assert.Equal(t, "user", svc.Name())
	})

	t.Run("constructor with explicit dependencies", func(t *testing.T) {
		c := New()
		mustRegister(t, c,
			Value("order-logger", &testLogger{Prefix: "orders"}),
			Constructor(newTestOrderService, Inject("order-logger")),
		)
		mustBuild(t, c)

		svc, err := Resolve[*testOrderService](ctx, c)
		require.NoError(t, err)
		assert.Equal(t, "orders", svc.Logger.Prefix)
	})
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestResolve_ConcurrentSingletonCreatedOnce(t *testing.T) {
	var calls, depCalls counter
	c := New(WithLazySingletons())
	mustRegister(t, c,
		Value(firstOptionalDependency, "first"),
		Factory("dep", func() *testLogger {
			depCalls.inc()
			return &testLogger{}
		}, WithLifetime(Transient)),
		Factory(myProvider, func(first, second any, dep *testLogger) *pair {
			calls.inc()
			return newPair(first, second)
		}, InjectOptional(firstOptionalDependency), InjectOptional(secondOptionalDependency), Inject("dep")),
	)
	mustBuild(t, c)

	const goroutines = 100
	results := make([]any, goroutines)

	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			v, err := c.Resolve(context.Background(), myProvider)
			results[i] = v
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, calls.get())
	assert.Equal(t, 1, depCalls.get(), "dependencies are resolved once with their dependent")
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestResolve_ConcurrentRequestScopedCreatedOnce(t *testing.T) {
	var calls, depCalls counter
	c := New()
	mustRegister(t, c,
		Factory("dep", func() *testLogger {
			depCalls.inc()
			return &testLogger{}
		}, WithLifetime(Transient)),
		Factory("scoped", func(dep *testLogger) *testOrderService {
			calls.inc()
			return &testOrderService{Logger: dep}
		}, Inject("dep"), WithLifetime(Request)),
	)
	mustBuild(t, c)

	rc := c.NewRequestContext("")
	defer rc.Close(context.Background())

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := rc.Resolve(context.Background(), "scoped")
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, calls.get())
	assert.Equal(t, 1, depCalls.get())
}

func TestResolve_ConcurrentOptionalCycle(t *testing.T) {
	c := New(WithLazySingletons())
	mustRegister(t, c,
		Factory("A", func(b *pair) *pair { return &pair{First: b} }, Inject("B")),
		Factory("B", func(a any) *pair { return &pair{First: a} }, InjectOptional("A")),
	)
	mustBuild(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		token := "A"
		if i%2 == 1 {
			token = "B"
		}
		g.Go(func() error {
			_, err := c.Resolve(ctx, token)
			return err
		})
	}
	require.NoError(t, g.Wait())

	a := mustResolve(t, c, "A").(*pair)
	assert.Same(t, a.First, mustResolve(t, c, "B"))
}

func TestResolve_CanceledCreatorDoesNotFailWaiters(t *testing.T) {
	var calls counter
	entered := make(chan struct{})

	c := New(WithLazySingletons())
	mustRegister(t, c, Factory("slow", func(ctx context.Context) (*testLogger, error) {
		if calls.inc() == 1 {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &testLogger{Prefix: "slow"}, nil
	}))
	mustBuild(t, c)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := c.Resolve(leaderCtx, "slow")
		leader <- err
	}()
	<-entered

	waiter := make(chan error, 1)
	go func() {
		_, err := c.Resolve(context.Background(), "slow")
		waiter <- err
	}()

	cancel()
	assert.ErrorIs(t, <-leader, context.Canceled)
	require.NoError(t, <-waiter)

	v := mustResolve(t, c, "slow").(*testLogger)
	assert.Equal(t, "slow", v.Prefix)
	assert.Equal(t, 2, calls.get())
}

func TestResolve_ConcurrentRequestContextsAreIsolated(t *testing.T) {
	c := New()
	mustRegister(t, c,
		Factory("logger", newTestLogger, WithLifetime(Request)),
		Factory("order", newTestOrderService, Inject("logger"), WithLifetime(Transient)),
	)
	mustBuild(t, c)

	const requests = 50
	loggers := make([]*testLogger, requests)

	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			ctx := context.Background()
			rc := c.NewRequestContext(fmt.Sprintf("req-%d", i))
			defer rc.Close(ctx)

			rctx := WithRequestContext(ctx, rc)
			o1, err := ResolveToken[*testOrderService](rctx, c, "order")
			if err != nil {
				return err
			}
			o2, err := ResolveToken[*testOrderService](rctx, c, "order")
			if err != nil {
				return err
			}
			if o1 == o2 {
				return errors.New("transient instances must differ")
			}
			if o1.Logger != o2.Logger {
				return fmt.Errorf("request %s: logger not shared", rc.ID())
			}
			loggers[i] = o1.Logger
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[*testLogger]bool)
	for _, l := range loggers {
		assert.False(t, seen[l], "request-scoped instance leaked across contexts")
		seen[l] = true
	}
}
