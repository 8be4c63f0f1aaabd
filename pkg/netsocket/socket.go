package netsocket

import (
	"net"
	"sync"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netsock/pkg/cyclebuf"
	"netsock/pkg/sockconfig"
)

// Socket is a stream connection whose outgoing and incoming bytes pass
// through cycle buffers. A sender goroutine hands contiguous runs of the
// send buffer straight to the connection; a receiver goroutine appends
// whatever the connection delivers to the receive buffer.
type Socket struct {
	t *Stack

	socketId int32
	conn     net.Conn
	logger   *zap.Logger

	segment   int
	readChunk int

	mu      sync.Mutex // guards both buffers and the counters below
	sendBuf *cyclebuf.CycleBuffer
	recvBuf *cyclebuf.CycleBuffer
	queued  uint64 // bytes ever appended to sendBuf
	sent    uint64 // bytes ever written to conn
	flushQ  *deque.Deque[*flushWaiter]
	err     error // sticky: set once the socket can no longer send
	rerr    error // set once the receive side has ended

	// one sync write, and so one lock span, at a time
	syncMu sync.Mutex
	lock   cyclebuf.LockFlag

	hasUnsentC chan struct{}
	canReadC   chan struct{}
	closeC     chan struct{}
	closeOnce  sync.Once
	group      errgroup.Group
}

// NewSocket takes ownership of conn and starts the send and receive loops.
func NewSocket(conn net.Conn, id int32, config *sockconfig.Config, logger *zap.Logger) *Socket {
	if config == nil {
		config = sockconfig.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Socket{
		socketId:   id,
		conn:       conn,
		logger:     logger.Named("socket").With(zap.Int32("sid", id)),
		segment:    config.Segment,
		readChunk:  config.ReadChunk,
		sendBuf:    cyclebuf.New(config.Capacity),
		recvBuf:    cyclebuf.New(config.Capacity),
		flushQ:     deque.New[*flushWaiter](),
		hasUnsentC: make(chan struct{}, 1),
		canReadC:   make(chan struct{}, 1),
		closeC:     make(chan struct{}),
	}
	s.group.Go(s.sendLoop)
	s.group.Go(s.recvLoop)
	return s
}

func (s *Socket) ID() int32 {
	return s.socketId
}

func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close stops both loops, closes the connection and drops buffered bytes.
// Pending Flush and WriteSync calls return ErrClosed.
func (s *Socket) Close() error {
	s.fail(ErrClosed)
	err := s.conn.Close()
	if werr := s.group.Wait(); werr != nil {
		s.logger.Debug("socket loop ended with error", zap.Error(werr))
	}

	s.mu.Lock()
	s.sendBuf.Clear()
	s.recvBuf.Clear()
	s.mu.Unlock()

	if s.t != nil {
		s.t.deleteSocket(s.socketId)
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close")
	}
	return nil
}

// fail records the first terminal error and wakes everyone waiting on
// the send side.
func (s *Socket) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	for s.flushQ.Len() > 0 {
		w := s.flushQ.PopFront()
		w.err = s.err
		close(w.done)
	}
	s.closeOnce.Do(func() { close(s.closeC) })
}

// Info is a point-in-time view of a socket's buffers.
type Info struct {
	ID     int32
	Send   BufferInfo
	Recv   BufferInfo
	Queued uint64
	Sent   uint64
	Err    error
}

type BufferInfo struct {
	Len        int
	Cap        int
	Contiguous int
	Locked     bool
}

func bufferInfo(cb *cyclebuf.CycleBuffer) BufferInfo {
	return BufferInfo{
		Len:        cb.Len(),
		Cap:        cb.Cap(),
		Contiguous: cb.ContiguousLen(),
		Locked:     cb.Locked(),
	}
}

func (s *Socket) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:     s.socketId,
		Send:   bufferInfo(s.sendBuf),
		Recv:   bufferInfo(s.recvBuf),
		Queued: s.queued,
		Sent:   s.sent,
		Err:    s.err,
	}
}

func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
