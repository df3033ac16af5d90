package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-docs/types"
)

type orderedMiddleware struct {
	name   string
	weight int
	calls  *[]string
}

func (o *orderedMiddleware) Name() string { return o.name }
func (o *orderedMiddleware) Weight() int  { return o.weight }

func (o *orderedMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	*o.calls = append(*o.calls, o.name)
	next(ctx)
}

type middlewareStubConfig struct{}

func (s *middlewareStubConfig) Load() error { return nil }

func (s *middlewareStubConfig) GetConfig() *types.ServiceConfig {
	return &types.ServiceConfig{Middlewares: &types.MiddlewaresConfig{Enabled: false}}
}

func (s *middlewareStubConfig) GetValue(path string, defaultValue interface{}) interface{} {
	return defaultValue
}

func (s *middlewareStubConfig) GetAs(path string, target interface{}) error { return nil }

func newFinalizedManager(t *testing.T, middlewares ...types.Middleware) *Manager {
	t.Helper()

	manager, err := NewManager(context.Background(), &middlewareStubConfig{}, nil, nil)
	require.NoError(t, err)

	for _, mw := range middlewares {
		require.NoError(t, manager.Register(mw))
	}
	require.NoError(t, manager.finalizeConfiguration())

	return manager
}

func TestExecuteRunsInWeightOrder(t *testing.T) {
	var calls []string
	manager := newFinalizedManager(t,
		&orderedMiddleware{name: "Second", weight: 20, calls: &calls},
		&orderedMiddleware{name: "First", weight: 10, calls: &calls},
	)

	var handled bool
	manager.Execute(&fasthttp.RequestCtx{}, func(ctx *fasthttp.RequestCtx) {
		handled = true
	}, nil)

	assert.True(t, handled)
	assert.Equal(t, []string{"First", "Second"}, calls)
}

func TestExecuteSkipsDisabledMiddlewares(t *testing.T) {
	var calls []string
	manager := newFinalizedManager(t,
		&orderedMiddleware{name: "First", weight: 10, calls: &calls},
		&orderedMiddleware{name: "Second", weight: 20, calls: &calls},
	)

	manager.Execute(&fasthttp.RequestCtx{}, func(ctx *fasthttp.RequestCtx) {}, &types.RouteConfig{
		DisabledMiddlewares: []string{"First"},
	})

	assert.Equal(t, []string{"Second"}, calls)
}

func TestRegisterRejectsDuplicateWeight(t *testing.T) {
	var calls []string
	manager, err := NewManager(context.Background(), &middlewareStubConfig{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, manager.Register(&orderedMiddleware{name: "A", weight: 10, calls: &calls}))
	require.NoError(t, manager.Register(&orderedMiddleware{name: "B", weight: 10, calls: &calls}))

	assert.Error(t, manager.finalizeConfiguration())
}

func TestRegisterAfterFinalizationFails(t *testing.T) {
	var calls []string
	manager := newFinalizedManager(t, &orderedMiddleware{name: "A", weight: 10, calls: &calls})

	err := manager.Register(&orderedMiddleware{name: "B", weight: 20, calls: &calls})
	assert.Error(t, err)
}

func TestExecuteWithoutFinalizationRunsHandler(t *testing.T) {
	manager, err := NewManager(context.Background(), &middlewareStubConfig{}, nil, nil)
	require.NoError(t, err)

	var handled bool
	manager.Execute(&fasthttp.RequestCtx{}, func(ctx *fasthttp.RequestCtx) {
		handled = true
	}, nil)

	assert.True(t, handled)
}
