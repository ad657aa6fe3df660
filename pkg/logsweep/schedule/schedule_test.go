package schedule

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
)

func quiet() Option {
	return WithLogger(logging.New(io.Discard, "schedule", logging.LevelDebug))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/15 * * * *", false},
		{"@daily", false},
		{"@every 90m", false},
		{"", true},
		{"0 2 * *", true},
		{"61 * * * *", true},
		{"whenever", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := Validate(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("nope", func(context.Context) {}, quiet())
	require.Error(t, err)
}

func TestNext(t *testing.T) {
	s, err := New("@every 1h", func(context.Context) {}, quiet())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Next(), 2*time.Second)
}

func TestRun_RunsOnStartAndStops(t *testing.T) {
	var runs atomic.Int32
	s, err := New("@every 1h", func(context.Context) { runs.Add(1) }, quiet(), WithRunOnStart(true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestRun_Ticks(t *testing.T) {
	var runs atomic.Int32
	s, err := New("@every 1s", func(context.Context) { runs.Add(1) }, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestRun_SkipsOverlappingRuns(t *testing.T) {
	var running, maxRunning atomic.Int32
	job := func(ctx context.Context) {
		n := running.Add(1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(1500 * time.Millisecond):
		}
		running.Add(-1)
	}

	s, err := New("@every 1s", job, quiet(), WithRunOnStart(true))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRun_RecoversPanics(t *testing.T) {
	var runs atomic.Int32
	job := func(context.Context) {
		runs.Add(1)
		panic("boom")
	}

	s, err := New("@every 1s", job, quiet(), WithRunOnStart(true))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}
