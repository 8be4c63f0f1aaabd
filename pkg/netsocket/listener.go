package netsocket

import (
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Listener struct {
	t *Stack

	socketId int32
	port     uint16
	ln       net.Listener
}

func (l *Listener) ID() int32 {
	return l.socketId
}

func (l *Listener) Port() uint16 {
	return l.port
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until a peer connects and returns the new socket.
func (l *Listener) Accept() (*Socket, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, errors.Wrapf(err, "accept on port %v", l.port)
	}
	s := l.t.attach(conn)
	l.t.logger.Info("new connection",
		zap.Int32("listener", l.socketId), zap.Int32("sid", s.socketId), zap.Stringer("remote", conn.RemoteAddr()))
	return s, nil
}

// AcceptLoop accepts until the listener is closed, handing each socket to fn.
func (l *Listener) AcceptLoop(fn func(*Socket)) {
	for {
		s, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.t.logger.Warn("accept failed", zap.Int32("listener", l.socketId), zap.Error(err))
			return
		}
		if fn != nil {
			fn(s)
		}
	}
}

func (l *Listener) Close() error {
	if !l.t.deleteListener(l.port) {
		return errors.Errorf("listener with port %v already closed", l.port)
	}
	return l.ln.Close()
}
