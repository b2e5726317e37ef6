package tinygo

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/groutine"
)

// stopScanRetry is how often a failed StopScan is retried while the scan is still running.
const stopScanRetry = 10 * time.Millisecond

// stopWhenCancelled calls stop once ctx ends and keeps retrying until it
// succeeds or done closes. The adapter rejects StopScan until its scan loop has
// started, so a single attempt can leave Scan blocked forever.
func stopWhenCancelled(ctx context.Context, done <-chan struct{}, stop func() error, retry time.Duration, logger *logrus.Logger) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		err := stop()
		if err == nil {
			return
		}
		logger.WithError(err).Debug("StopScan failed, retrying")
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// awaitConnect runs connect on its own goroutine and waits for it or ctx.
// A connection that completes after ctx ended is handed to release, so no
// platform link outlives an abandoned attempt.
func awaitConnect[T any](ctx context.Context, connect func() (T, error), release func(T)) (T, error) {
	type result struct {
		value T
		err   error
	}

	var (
		mu        sync.Mutex
		abandoned bool
	)
	ch := make(chan result, 1)

	groutine.Go(context.WithoutCancel(ctx), "tinygo-connect", func(context.Context) {
		v, err := connect()
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if err == nil {
				release(v)
			}
			return
		}
		ch <- result{v, err}
	})

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		mu.Unlock()
		select {
		case res := <-ch:
			if res.err == nil {
				release(res.value)
			}
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// notifyRouter hands platform notifications to the current handler of each
// characteristic. Platforms that cannot turn notifications off keep
// delivering after Unsubscribe; the router drops those values.
type notifyRouter struct {
	mu       sync.Mutex
	handlers map[string]func([]byte)
	enabled  map[string]bool
}

func newNotifyRouter() *notifyRouter {
	return &notifyRouter{
		handlers: make(map[string]func([]byte)),
		enabled:  make(map[string]bool),
	}
}

// attach installs handler for key and reports whether the platform still has
// to be asked for notifications.
func (r *notifyRouter) attach(key string, handler func([]byte)) (needsEnable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = handler
	return !r.enabled[key]
}

// detach removes the handler for key.
func (r *notifyRouter) detach(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, key)
}

// setEnabled records whether the platform is delivering notifications for key.
func (r *notifyRouter) setEnabled(key string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		r.enabled[key] = true
	} else {
		delete(r.enabled, key)
	}
}

// callback is what gets registered with the platform for key.
func (r *notifyRouter) callback(key string) func([]byte) {
	return func(buf []byte) {
		r.mu.Lock()
		handler := r.handlers[key]
		r.mu.Unlock()
		if handler != nil {
			handler(append([]byte(nil), buf...))
		}
	}
}
