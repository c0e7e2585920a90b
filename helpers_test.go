package grove

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Shared test types, tokens and constructors used across test files.

// mustRegister fails the test if registration fails.
func mustRegister(t *testing.T, c Container, providers ...Provider) {
	t.Helper()
	require.NoError(t, c.Register(providers...), "Register")
}

// mustBuild fails the test if build fails.
func mustBuild(t *testing.T, c Container) {
	t.Helper()
	require.NoError(t, c.Build(context.Background()), "Build")
}

// mustResolve resolves token or fails the test.
func mustResolve(t *testing.T, r Resolver, token Token) any {
	t.Helper()
	v, err := r.Resolve(context.Background(), token)
	require.NoError(t, err, "Resolve(%s)", tokenName(token))
	return v
}

const (
	myProvider               = "MY_PROVIDER"
	firstOptionalDependency  = "FIRST_OPTIONAL_DEPENDENCY"
	secondOptionalDependency = "SECOND_OPTIONAL_DEPENDENCY"
)

type pair struct {
	First  any
	Second any
}

func newPair(first, second any) *pair {
	return &pair{First: first, Second: second}
}

type testLogger struct{ Prefix string }
type testConfig struct{ DSN string }

type testDatabase struct {
	Config *testConfig
	Logger *testLogger
}

type testUserRepo struct {
	DB     *testDatabase
	Logger *testLogger
}

type testService interface {
	Name() string
}

type testUserService struct {
	Repo   *testUserRepo
	Logger *testLogger
}

func (s *testUserService) Name() string { return "user" }

type testOrderService struct{ Logger *testLogger }

func (s *testOrderService) Name() string { return "order" }

type testCircA struct{ B *testCircB }
type testCircB struct{ C *testCircC }
type testCircC struct{ A *testCircA }

func newTestLogger() *testLogger           { return &testLogger{Prefix: "app"} }
func newTestConfig() *testConfig           { return &testConfig{DSN: "postgres://localhost"} }
func newTestCircA(b *testCircB) *testCircA { return &testCircA{B: b} }
func newTestCircB(c *testCircC) *testCircB { return &testCircB{C: c} }
func newTestCircC(a *testCircA) *testCircC { return &testCircC{A: a} }

func newTestDatabase(cfg *testConfig, log *testLogger) *testDatabase {
	return &testDatabase{Config: cfg, Logger: log}
}

func newTestUserRepo(db *testDatabase, log *testLogger) *testUserRepo {
	return &testUserRepo{DB: db, Logger: log}
}

func newTestUserService(repo *testUserRepo, log *testLogger) *testUserService {
	return &testUserService{Repo: repo, Logger: log}
}

func newTestOrderService(log *testLogger) *testOrderService {
	return &testOrderService{Logger: log}
}

// testClosable implements io.Closer and records close order.
type testClosable struct {
	Name   string
	Closed bool

	mu    *sync.Mutex
	Order *[]string // shared slice to record close order
}

func (c *testClosable) Close() error {
	c.Closed = true
	if c.Order != nil {
		if c.mu != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
		}
		*c.Order = append(*c.Order, c.Name)
	}
	return nil
}

// testFailCloser implements io.Closer but returns an error.
type testFailCloser struct{}

func (f *testFailCloser) Close() error {
	return errors.New("close failed")
}

// counter counts factory invocations.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
