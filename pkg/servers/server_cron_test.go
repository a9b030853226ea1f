package servers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCron struct {
	spec    string
	cmd     func()
	addErr  error
	started bool
	stopCtx context.Context
}

func (f *fakeCron) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}

	f.spec = spec
	f.cmd = cmd

	return 1, nil
}

func (f *fakeCron) Start() {
	f.started = true
}

func (f *fakeCron) Stop() context.Context {
	return f.stopCtx
}

func doneContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	return ctx
}

func TestCronServer_Run(t *testing.T) {
	t.Parallel()

	t.Run("schedules and runs the job", func(t *testing.T) {
		t.Parallel()

		runs := 0
		internal := &fakeCron{stopCtx: doneContext()}
		server := NewCronServerWith("maintenance", "@daily", func(context.Context) error {
			runs++
			return nil
		}, internal)

		require.NoError(t, server.Run(context.Background()))
		assert.True(t, internal.started)
		assert.Equal(t, "@daily", internal.spec)

		internal.cmd()
		internal.cmd()
		assert.Equal(t, 2, runs)

		require.NoError(t, server.Stop(context.Background()))
	})

	t.Run("job failure keeps the schedule", func(t *testing.T) {
		t.Parallel()

		internal := &fakeCron{stopCtx: doneContext()}
		server := NewCronServerWith("maintenance", "@hourly", func(context.Context) error {
			return errors.New("purge failed")
		}, internal)

		require.NoError(t, server.Run(context.Background()))
		assert.NotPanics(t, internal.cmd)
	})

	t.Run("bad spec", func(t *testing.T) {
		t.Parallel()

		internal := &fakeCron{addErr: errors.New("expected exactly 5 fields")}
		server := NewCronServerWith("maintenance", "nonsense", func(context.Context) error { return nil }, internal)

		err := server.Run(context.Background())
		require.ErrorContains(t, err, "server maintenance failed to start")
		require.ErrorContains(t, err, `"nonsense"`)
		assert.False(t, internal.started)
	})

	t.Run("real cron rejects bad spec", func(t *testing.T) {
		t.Parallel()

		server := NewCronServer("maintenance", "every now and then", func(context.Context) error { return nil })
		require.Error(t, server.Run(context.Background()))
	})
}

func TestCronServer_Stop(t *testing.T) {
	t.Parallel()

	// a running job that never finishes
	internal := &fakeCron{stopCtx: context.Background()}
	server := NewCronServerWith("maintenance", "@daily", func(context.Context) error { return nil }, internal)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := server.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "server maintenance failed to stop")
}
