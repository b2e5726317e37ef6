// Package ptyio exposes a pseudo-terminal whose master side is pumped by
// background goroutines, so a BLE link can be bridged to any program that
// opens the slave path (screen, minicom, a serial library).
//
//	p, err := ptyio.Open(&ptyio.Options{
//	    Logger: logger,
//	    OnRead: func(data []byte) { _ = sess.WriteBytes(svc, chr, data) },
//	})
//	// p.TTYName() -> "/dev/pts/X"
//	_, _ = p.Write(received) // shows up on the slave side
//
// Writes are non-blocking: bytes are queued in a ring and dropped when it is full.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blelink/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Options configures Open. Zero fields take the tagged defaults.
type Options struct {
	WriteCap    int           `default:"4096"`
	PollTimeout time.Duration `default:"50ms"` // bounds shutdown latency of the read loop
	Logger      *logrus.Logger

	// OnRead receives bytes written to the slave by the attached program.
	// It runs on the read goroutine and owns the slice.
	OnRead func(data []byte)

	// OnError is called at most once when a pump loop exits on an unexpected error.
	OnError func(err error)
}

// Stats are runtime counters for the pumps.
type Stats struct {
	ReadBytes    uint64
	WrittenBytes uint64
	DroppedBytes uint64
}

// PTY is an open master/slave pair.
type PTY struct {
	logger  *logrus.Logger
	master  *os.File
	slave   *os.File
	ttyName string
	opts    Options

	writeBuf    *ringbuffer.RingBuffer
	writeNotify chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	errOnce   sync.Once
	closed    atomic.Bool
	readBytes atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
}

// Open creates the pair, puts the slave in raw mode and starts the pumps.
func Open(opts *Options) (*PTY, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetOutput(io.Discard)
	}

	master, slave, err := createPTY()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &PTY{
		logger:      o.Logger,
		master:      master,
		slave:       slave, // kept open so the device node stays usable
		ttyName:     slave.Name(),
		opts:        o,
		writeBuf:    ringbuffer.New(o.WriteCap),
		writeNotify: make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	p.wg.Add(2)
	groutine.Go(ctx, "pty-read-loop", func(context.Context) { p.readLoop() })
	groutine.Go(ctx, "pty-write-loop", func(context.Context) { p.writeLoop() })

	p.logger.WithField("tty", p.ttyName).Info("PTY opened")
	return p, nil
}

// TTYName returns the slave device path.
func (p *PTY) TTYName() string {
	return p.ttyName
}

// Write queues data for the slave side. It never blocks; n < len(data) means
// the queue was full and the rest was dropped.
func (p *PTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := p.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return n, err
	}
	if n < len(data) {
		p.dropped.Add(uint64(len(data) - n))
		p.logger.WithFields(logrus.Fields{
			"bytes":   len(data) - n,
			"dropped": p.dropped.Load(),
		}).Warn("PTY write queue full, dropping bytes")
	}

	select {
	case p.writeNotify <- struct{}{}:
	default:
	}
	return n, nil
}

// Stats returns the current counters.
func (p *PTY) Stats() Stats {
	return Stats{
		ReadBytes:    p.readBytes.Load(),
		WrittenBytes: p.written.Load(),
		DroppedBytes: p.dropped.Load(),
	}
}

// Close stops the pumps and closes both ends. Calling it again is a no-op.
func (p *PTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	var errs []error
	if err := p.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY master: %w", err))
	}
	if err := p.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY slave: %w", err))
	}

	done := make(chan struct{})
	groutine.Go(context.Background(), "pty-wait-close", func(context.Context) {
		p.wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(p.opts.PollTimeout*2 + time.Second):
		p.logger.WithField("tty", p.ttyName).Error("Timed out waiting for PTY pumps to exit")
	}

	p.logger.WithField("tty", p.ttyName).Debug("PTY closed")
	return errors.Join(errs...)
}

func (p *PTY) fail(loop string, err error) {
	p.logger.WithError(err).Warnf("%s exiting on error", loop)
	if p.opts.OnError != nil {
		p.errOnce.Do(func() { p.opts.OnError(fmt.Errorf("%s: %w", loop, err)) })
	}
}

func (p *PTY) readLoop() {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLIN}}
	timeout := int(p.opts.PollTimeout / time.Millisecond)
	buf := make([]byte, 4096)

	for p.ctx.Err() == nil {
		ready, err := unix.Poll(fds, timeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Debug("read poll failed")
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := p.master.Read(buf)
		if n > 0 {
			p.readBytes.Add(uint64(n))
			if p.opts.OnRead != nil {
				p.opts.OnRead(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed), errors.Is(err, io.EOF):
				return
			default:
				if p.ctx.Err() == nil {
					p.fail("read loop", err)
				}
				return
			}
		}
	}
}

func (p *PTY) writeLoop() {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLOUT}}
	timeout := int(p.opts.PollTimeout / time.Millisecond)
	buf := make([]byte, 4096)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.writeNotify:
		}

		for !p.writeBuf.IsEmpty() {
			n, err := p.writeBuf.TryRead(buf)
			if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
				p.logger.WithError(err).Warn("write queue read failed")
				break
			}

			for off := 0; off < n; {
				w, err := p.master.Write(buf[off:n])
				off += w
				p.written.Add(uint64(w))
				if err == nil {
					continue
				}
				switch {
				case errors.Is(err, syscall.EINTR):
				case errors.Is(err, syscall.EAGAIN):
					if _, perr := unix.Poll(fds, timeout); perr != nil && !errors.Is(perr, syscall.EINTR) {
						p.logger.WithError(perr).Debug("write poll failed")
					}
					if p.ctx.Err() != nil {
						return
					}
				case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
					return
				default:
					if p.ctx.Err() == nil {
						p.fail("write loop", err)
					}
					return
				}
			}
		}
	}
}

// createPTY opens a pair, sets the slave to raw mode and the master to non-blocking.
func createPTY() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	cleanup := func(stage string, cause error) error {
		return errors.Join(
			fmt.Errorf("failed to set PTY %s %s: %w", slave.Name(), stage, cause),
			master.Close(),
			slave.Close(),
		)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return nil, nil, cleanup("to raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return nil, nil, cleanup("master to non-blocking mode", err)
	}
	return master, slave, nil
}
