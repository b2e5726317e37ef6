package tinygo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestStopWhenCancelledRetriesUntilScanStarts(t *testing.T) {
	// GOAL: Verify a scan cancelled before the adapter loop starts is still stopped
	//
	// TEST SCENARIO: ctx cancelled → StopScan fails twice (not scanning yet) → third attempt succeeds → stopper returns

	var calls atomic.Int32
	stop := func() error {
		if calls.Add(1) < 3 {
			return errors.New("bluetooth: there is no scan in progress")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	finished := make(chan struct{})
	go func() {
		stopWhenCancelled(ctx, make(chan struct{}), stop, time.Millisecond, quietLogger())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stopper MUST return once StopScan succeeds")
	}
	assert.Equal(t, int32(3), calls.Load(), "MUST retry until StopScan succeeds")
}

func TestStopWhenCancelledGivesUpWhenScanEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	var calls atomic.Int32
	stop := func() error {
		if calls.Add(1) == 2 {
			close(done)
		}
		return errors.New("not scanning")
	}

	finished := make(chan struct{})
	go func() {
		stopWhenCancelled(ctx, done, stop, time.Millisecond, quietLogger())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stopper MUST return when the scan ends on its own")
	}
}

func TestStopWhenCancelledIdleWhileScanRuns(t *testing.T) {
	done := make(chan struct{})
	close(done)
	called := false

	stopWhenCancelled(context.Background(), done, func() error { called = true; return nil }, time.Millisecond, quietLogger())

	assert.False(t, called, "MUST NOT stop a scan whose ctx is still live")
}

func TestAwaitConnect(t *testing.T) {
	t.Run("returns the connection", func(t *testing.T) {
		got, err := awaitConnect(context.Background(),
			func() (string, error) { return "link", nil },
			func(string) { t.Error("release MUST NOT run for a delivered connection") })

		require.NoError(t, err)
		assert.Equal(t, "link", got)
	})

	t.Run("returns the connect error", func(t *testing.T) {
		_, err := awaitConnect(context.Background(),
			func() (string, error) { return "", errors.New("le-connection-abort-by-local") },
			func(string) {})

		assert.EqualError(t, err, "le-connection-abort-by-local")
	})

	t.Run("releases a connection that completes after ctx ends", func(t *testing.T) {
		// GOAL: Verify an abandoned attempt cannot leave a live platform connection
		//
		// TEST SCENARIO: ctx times out → connect completes afterwards → release receives it

		unblock := make(chan struct{})
		released := make(chan string, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := awaitConnect(ctx,
			func() (string, error) {
				<-unblock
				return "late-link", nil
			},
			func(v string) { released <- v })

		require.ErrorIs(t, err, context.DeadlineExceeded)
		close(unblock)

		select {
		case v := <-released:
			assert.Equal(t, "late-link", v)
		case <-time.After(2 * time.Second):
			t.Fatal("late connection MUST be released")
		}
	})
}

func TestNotifyRouter(t *testing.T) {
	// GOAL: Verify values reach only the current handler and the platform is enabled once
	//
	// TEST SCENARIO: attach → deliver → detach → deliver dropped → attach again without re-enabling

	r := newNotifyRouter()
	key := "ffe0/ffe1"
	callback := r.callback(key)

	var got []string
	assert.True(t, r.attach(key, func(b []byte) { got = append(got, string(b)) }), "first attach MUST enable")
	r.setEnabled(key, true)

	buf := []byte("OK")
	callback(buf)
	buf[0] = 'X'
	assert.Equal(t, []string{"OK"}, got, "MUST deliver a copy of the platform buffer")

	r.detach(key)
	callback([]byte("late"))
	assert.Equal(t, []string{"OK"}, got, "MUST drop values after detach")

	assert.False(t, r.attach(key, func(b []byte) { got = append(got, "again:"+string(b)) }),
		"MUST NOT enable twice while the platform still delivers")
	callback([]byte("hi"))
	assert.Equal(t, []string{"OK", "again:hi"}, got)

	r.setEnabled(key, false)
	assert.True(t, r.attach(key, func([]byte) {}), "MUST enable again after the platform stopped")
}
