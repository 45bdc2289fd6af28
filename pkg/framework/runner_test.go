package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	closed chan struct{}
}

func (c *closeRecorder) Close() error {
	close(c.closed)
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	t.Run("closes after completion", func(t *testing.T) {
		c := &closeRecorder{closed: make(chan struct{})}
		err := RunWithContextCloser(context.Background(), c, func() error { return nil })
		require.NoError(t, err)
		<-c.closed
	})
	t.Run("close unblocks on cancel", func(t *testing.T) {
		c := &closeRecorder{closed: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		err := RunWithContextCloser(ctx, c, func() error {
			<-c.closed
			return errors.New("read on closed port")
		})
		require.Equal(t, context.Canceled, err)
	})
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(
		NamedRun("blocked", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return errors.New("boom") }),
	)
	cancel()
	err := r.Wait()
	require.EqualError(t, err, "boom")
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, Sleep(ctx, time.Hour))
}
