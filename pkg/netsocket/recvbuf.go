package netsocket

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Read copies received bytes into p. It blocks until at least one byte is
// available, and returns io.EOF once the peer has closed and every received
// byte has been read.
func (s *Socket) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.recvBuf.Len() == 0 {
		if errors.Is(s.err, ErrClosed) {
			return 0, ErrClosed
		}
		if s.rerr != nil {
			return 0, s.rerr
		}
		if s.err != nil {
			return 0, s.err
		}
		s.mu.Unlock()
		select {
		case <-s.canReadC:
		case <-s.closeC:
		}
		s.mu.Lock()
	}

	n := 0
	for n < len(p) && s.recvBuf.Len() > 0 {
		c := copy(p[n:], s.recvBuf.Bytes())
		s.recvBuf.MarkAsRead(c)
		n += c
	}
	return n, nil
}

// Buffered returns how many received bytes are waiting to be read.
func (s *Socket) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvBuf.Len()
}

func (s *Socket) recvLoop() error {
	buf := make([]byte, s.readChunk)
	for {
		n, err := s.conn.Read(buf)

		s.mu.Lock()
		if n > 0 {
			s.recvBuf.Append(buf[:n], nil)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.rerr = io.EOF
			} else {
				s.rerr = errors.Wrap(err, "recv")
			}
		}
		s.mu.Unlock()
		notify(s.canReadC)

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("receive side ended", zap.Error(err))
				return nil
			}
			s.logger.Warn("recv failed", zap.Error(err))
			return err
		}
	}
}
