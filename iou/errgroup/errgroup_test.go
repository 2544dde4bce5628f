//go:build unit

package errgroup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	log.NopLogger
	messages atomic.Int32
}

func (l *recordingLogger) Log(context.Context, log.Level, string, ...log.Field) {
	l.messages.Add(1)
}

func TestWithContext_AllSucceed(t *testing.T) {
	group, ctx := WithContext(context.Background())

	var count atomic.Int32
	for range 5 {
		group.Go(func() error {
			count.Add(1)
			return nil
		})
	}

	require.NoError(t, group.Wait())
	assert.Equal(t, int32(5), count.Load())
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "Wait cancels the derived context")
}

func TestWithContext_FirstErrorCancels(t *testing.T) {
	group, ctx := WithContext(context.Background())
	boom := errors.New("boom")

	group.Go(func() error { return boom })
	group.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("sibling was not cancelled")
		}
	})

	assert.ErrorIs(t, group.Wait(), boom)
}

func TestGo_RecoversPanics(t *testing.T) {
	group, _ := WithContext(context.Background())
	logger := &recordingLogger{}
	group.SetLogger(logger)

	group.Go(func() error { panic("kaboom") })

	err := group.Wait()
	require.ErrorIs(t, err, ErrPanicRecovered)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, int32(1), logger.messages.Load())
}

func TestSetLimit(t *testing.T) {
	group, _ := WithContext(context.Background())
	group.SetLimit(2)

	var running, peak atomic.Int32

	for range 6 {
		group.Go(func() error {
			now := running.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)
			running.Add(-1)

			return nil
		})
	}

	require.NoError(t, group.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
