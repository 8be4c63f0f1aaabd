package netsocket

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"netsock/pkg/sockconfig"
)

var (
	ErrClosed    = errors.New("socket closed")
	ErrNotFound  = errors.New("socket not found")
	ErrPortInUse = errors.New("port already in use")
)

// Stack is the table of listeners and connected sockets.
type Stack struct {
	config *sockconfig.Config
	logger *zap.Logger

	listenerTable map[uint16]*Listener // key: port num
	connTable     map[int32]*Socket    // key: socket id
	tableMu       sync.RWMutex

	socketNum int32 // most recently assigned socket id
}

func NewStack(config *sockconfig.Config, logger *zap.Logger) *Stack {
	if config == nil {
		config = sockconfig.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stack{
		config:        config,
		logger:        logger.Named("stack"),
		listenerTable: make(map[uint16]*Listener),
		connTable:     make(map[int32]*Socket),
		socketNum:     -1,
	}
}

func (t *Stack) nextID() int32 {
	return atomic.AddInt32(&t.socketNum, 1)
}

// Listen creates a listening socket bound to port. Port 0 picks a free port.
func (t *Stack) Listen(port uint16) (*Listener, error) {
	if t.isPortInUse(port) {
		return nil, errors.Wrapf(ErrPortInUse, "port %v", port)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %v", port)
	}
	l := &Listener{
		t:        t,
		socketId: t.nextID(),
		port:     addrPort(ln.Addr()).Port(),
		ln:       ln,
	}
	t.bindListener(l.port, l)
	t.logger.Info("created a listener socket", zap.Int32("sid", l.socketId), zap.Uint16("port", l.port))
	return l, nil
}

// Connect dials addr and returns a socket with its send and receive loops running.
func (t *Stack) Connect(addr netip.AddrPort) (*Socket, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %v", addr)
	}
	s := t.attach(conn)
	t.logger.Info("created a new socket", zap.Int32("sid", s.socketId), zap.Stringer("remote", addr))
	return s, nil
}

// attach wraps an established connection into a socket and binds it.
func (t *Stack) attach(conn net.Conn) *Socket {
	s := NewSocket(conn, t.nextID(), t.config, t.logger)
	s.t = t
	t.bindSocket(s)
	return s
}

func (t *Stack) Get(id int32) (*Socket, error) {
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()
	s, ok := t.connTable[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "socket id %v", id)
	}
	return s, nil
}

// Close closes the socket or listener with the given id.
func (t *Stack) Close(id int32) error {
	t.tableMu.RLock()
	s, ok := t.connTable[id]
	var l *Listener
	if !ok {
		for _, candidate := range t.listenerTable {
			if candidate.socketId == id {
				l = candidate
				break
			}
		}
	}
	t.tableMu.RUnlock()

	switch {
	case s != nil:
		return s.Close()
	case l != nil:
		return l.Close()
	}
	return errors.Wrapf(ErrNotFound, "socket id %v", id)
}

// Shutdown closes every listener and socket in the table.
func (t *Stack) Shutdown() error {
	t.tableMu.RLock()
	listeners := make([]*Listener, 0, len(t.listenerTable))
	for _, l := range t.listenerTable {
		listeners = append(listeners, l)
	}
	sockets := make([]*Socket, 0, len(t.connTable))
	for _, s := range t.connTable {
		sockets = append(sockets, s)
	}
	t.tableMu.RUnlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	for _, s := range sockets {
		err = multierr.Append(err, s.Close())
	}
	return err
}

func (t *Stack) isPortInUse(port uint16) bool {
	if port == 0 {
		return false
	}
	t.tableMu.RLock()
	defer t.tableMu.RUnlock()
	_, ok := t.listenerTable[port]
	return ok
}

func (t *Stack) bindListener(port uint16, l *Listener) {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()
	t.listenerTable[port] = l
}

func (t *Stack) deleteListener(port uint16) bool {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()
	if _, ok := t.listenerTable[port]; !ok {
		return false
	}
	delete(t.listenerTable, port)
	return true
}

func (t *Stack) bindSocket(s *Socket) {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()
	t.connTable[s.socketId] = s
}

func (t *Stack) deleteSocket(id int32) {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()
	delete(t.connTable, id)
}
