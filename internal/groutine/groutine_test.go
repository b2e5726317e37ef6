package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoCarriesName(t *testing.T) {
	names := make(chan string, 1)

	Go(nil, "scan-runner", func(ctx context.Context) {
		names <- Name(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "scan-runner", name)
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine MUST run")
	}
}

func TestNameOutsideGoroutine(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck // nil context is handled explicitly
}

func TestGoInheritsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	Go(parent, "waiter", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "child context MUST observe parent cancellation")
	}
}
