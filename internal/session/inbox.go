package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blelink/internal/device"
)

// Inbox accumulates notification payloads.
//
// Text is the decoded concatenation of every value received since the last
// Reset. Next hands the same bytes to a streaming consumer through a bounded
// ring; when the consumer falls behind, excess bytes are dropped and counted
// so the platform callback never blocks.
type Inbox struct {
	mu   sync.Mutex
	text strings.Builder

	stream  *ringbuffer.RingBuffer
	ready   chan struct{}
	dropped atomic.Uint64

	logger *logrus.Logger
}

func newInbox(capacity int, logger *logrus.Logger) *Inbox {
	return &Inbox{
		stream: ringbuffer.New(capacity),
		ready:  make(chan struct{}, 1),
		logger: logger,
	}
}

func (in *Inbox) append(data []byte) {
	if len(data) == 0 {
		return
	}

	in.mu.Lock()
	in.text.WriteString(device.DecodeMessage(data))
	in.mu.Unlock()

	n, err := in.stream.Write(data)
	if err != nil && (errors.Is(err, ringbuffer.ErrIsFull) || errors.Is(err, ringbuffer.ErrTooMuchDataToWrite)) {
		lost := len(data) - n
		in.dropped.Add(uint64(lost))
		in.logger.WithFields(logrus.Fields{
			"bytes":   lost,
			"dropped": in.dropped.Load(),
		}).Warn("Inbox stream full, dropping received bytes")
	}

	select {
	case in.ready <- struct{}{}:
	default:
	}
}

// Text returns everything received since the last Reset.
func (in *Inbox) Text() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.text.String()
}

// Reset clears the accumulated text and any unread stream bytes.
func (in *Inbox) Reset() {
	in.mu.Lock()
	in.text.Reset()
	in.mu.Unlock()
	in.stream.Reset()
}

// Next blocks until unread bytes are available or ctx is done.
func (in *Inbox) Next(ctx context.Context) ([]byte, error) {
	for {
		if n := in.stream.Length(); n > 0 {
			buf := make([]byte, n)
			read, err := in.stream.Read(buf)
			if read > 0 {
				return buf[:read], nil
			}
			if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
				return nil, err
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-in.ready:
		}
	}
}

// Dropped reports how many bytes the stream discarded because it was full.
func (in *Inbox) Dropped() uint64 {
	return in.dropped.Load()
}
