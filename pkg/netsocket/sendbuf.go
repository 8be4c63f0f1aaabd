package netsocket

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type flushWaiter struct {
	target uint64 // flush is done once sent reaches target
	done   chan struct{}
	err    error
}

// Write queues p for sending and returns without waiting for the network.
// The send buffer grows to absorb bursts.
func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	s.sendBuf.Append(p, nil)
	s.queued += uint64(len(p))
	notify(s.hasUnsentC)
	return len(p), nil
}

// WriteSync queues p under the socket's lock flag and blocks until the
// sender has written every byte of it to the connection.
//
// If ctx ends first the bytes stay queued and will still be sent; the next
// WriteSync waits for that span before locking its own.
func (s *Socket) WriteSync(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if err := s.waitLock(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return 0, s.err
	}
	if !s.lock.Acquire() {
		s.mu.Unlock()
		return 0, errors.New("lock flag is still busy")
	}
	s.sendBuf.Append(p, &s.lock)
	s.queued += uint64(len(p))
	notify(s.hasUnsentC)
	s.mu.Unlock()

	if err := s.waitLock(ctx); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Socket) waitLock(ctx context.Context) error {
	select {
	case <-s.lock.Done():
		return nil
	case <-s.closeC:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for locked span")
	}
}

// Flush blocks until every byte written before the call has been handed
// to the connection.
func (s *Socket) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.sent >= s.queued {
		s.mu.Unlock()
		return nil
	}
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	w := &flushWaiter{target: s.queued, done: make(chan struct{})}
	s.flushQ.PushBack(w)
	s.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "flush")
	}
}

// The buffer should be locked on entry.
func (s *Socket) wakeFlushers() {
	for s.flushQ.Len() > 0 && s.flushQ.Front().target <= s.sent {
		close(s.flushQ.PopFront().done)
	}
}

// sendLoop drains the send buffer. The run being written is read outside
// the socket mutex: appends only touch free space, and growth moves the
// unread bytes to new storage, so the run cannot change underneath conn.Write.
func (s *Socket) sendLoop() error {
	for {
		s.mu.Lock()
		for s.sendBuf.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.hasUnsentC:
			case <-s.closeC:
				return nil
			}
			s.mu.Lock()
		}
		if s.err != nil {
			s.mu.Unlock()
			return nil
		}
		run := s.sendBuf.Bytes()
		if len(run) > s.segment {
			run = run[:s.segment]
		}
		s.mu.Unlock()

		n, err := s.conn.Write(run)

		s.mu.Lock()
		s.sendBuf.MarkAsRead(n)
		s.sent += uint64(n)
		s.wakeFlushers()
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("send failed", zap.Error(err), zap.Int("written", n))
			s.fail(errors.Wrap(err, "send"))
			return err
		}
		s.logger.Debug("sent", zap.Int("bytes", n))
	}
}
