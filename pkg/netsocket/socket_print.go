package netsocket

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
)

const socketTableHeader = "SID\tLAddr\t\tLPort\tRAddr\t\tRPort\tSendQ\tRecvQ\tStatus\n"

func addrPort(addr net.Addr) netip.AddrPort {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.AddrPort()
	}
	return netip.AddrPort{}
}

// SocketTable returns one tab-separated row per listener and socket,
// ordered by socket id.
func (t *Stack) SocketTable() []string {
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

	type row struct {
		id   int32
		line string
	}
	rows := make([]row, 0, len(listeners)+len(sockets))
	for _, l := range listeners {
		rows = append(rows, row{l.socketId, fmt.Sprintf("%v\t%v\t\t%v\t%v\t\t%v\t%v\t%v\t%v\n",
			l.socketId, "0.0.0.0", l.port, "0.0.0.0", 0, 0, 0, "LISTEN")})
	}
	for _, s := range sockets {
		info := s.Info()
		local, remote := addrPort(s.LocalAddr()), addrPort(s.RemoteAddr())
		status := "ESTABLISHED"
		if info.Err != nil {
			status = "CLOSED"
		}
		rows = append(rows, row{s.socketId, fmt.Sprintf("%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n",
			s.socketId, local.Addr(), local.Port(), remote.Addr(), remote.Port(), info.Send.Len, info.Recv.Len, status)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	res := make([]string, len(rows))
	for i, r := range rows {
		res[i] = r.line
	}
	return res
}

func (info Info) String() string {
	return fmt.Sprintf("sid %v: send len=%v cap=%v contiguous=%v locked=%v queued=%v sent=%v | recv len=%v cap=%v contiguous=%v",
		info.ID, info.Send.Len, info.Send.Cap, info.Send.Contiguous, info.Send.Locked, info.Queued, info.Sent,
		info.Recv.Len, info.Recv.Cap, info.Recv.Contiguous)
}
