package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(context.Background(), nil, &types.CronConfig{
		Enabled:  true,
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return manager
}

func TestAddValidation(t *testing.T) {
	manager := newTestManager(t)

	assert.ErrorIs(t, manager.Add("", "@hourly", func() {}), types.ErrCronJobNameIsEmpty)
	assert.ErrorIs(t, manager.Add("sweep", "", func() {}), types.ErrCronExpressionInvalid)
	assert.ErrorIs(t, manager.Add("sweep", "@hourly", nil), types.ErrCronJobIsNil)
	assert.ErrorIs(t, manager.Add("sweep", "not a cron spec", func() {}), types.ErrCronExpressionInvalid)
}

func TestAddRemoveList(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Add("sweep", "*/5 * * * *", func() {}))
	assert.ErrorIs(t, manager.Add("sweep", "*/5 * * * *", func() {}), types.ErrCronJobExists)

	require.NoError(t, manager.Add("stats", "@hourly", func() {}))

	jobs := manager.List()
	require.Len(t, jobs, 2)

	names := map[string]string{}
	for _, job := range jobs {
		names[job.Name] = job.Spec
	}
	assert.Equal(t, "*/5 * * * *", names["sweep"])
	assert.Equal(t, "@hourly", names["stats"])

	require.NoError(t, manager.Remove("stats"))
	assert.ErrorIs(t, manager.Remove("stats"), types.ErrCronJobNotFound)
	assert.Len(t, manager.List(), 1)
}

func TestLifecycle(t *testing.T) {
	manager := newTestManager(t)

	assert.False(t, manager.IsRunning())
	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Stop(), types.ErrServerNotRunning)
}

func TestAddAfterStopRejected(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Start())
	require.NoError(t, manager.Stop())

	assert.ErrorIs(t, manager.Add("late", "@hourly", func() {}), types.ErrServerNotRunning)
}
