package netsocket

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"netsock/pkg/repl"
)

const replTimeout = 5 * time.Second

func SocketRepl(t *Stack) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("a", acceptHandler(t), "Listens and accepts on a port. usage: a <port>")
	r.AddCommand("c", connectHandler(t), "Creates a new socket connected to the address and port. usage: c <addr> <port>")
	r.AddCommand("ls", lsHandler(t), "Lists all sockets. usage: ls")
	r.AddCommand("s", sendHandler(t), "Queues data on a socket. usage: s <sid> <data>")
	r.AddCommand("ss", syncSendHandler(t), "Sends data and waits until it is written. usage: ss <sid> <data>")
	r.AddCommand("r", readHandler(t), "Reads up to n bytes from a socket. usage: r <sid> <n>")
	r.AddCommand("f", flushHandler(t), "Waits until everything queued on a socket is written. usage: f <sid>")
	r.AddCommand("cl", closeHandler(t), "Closes a socket or listener. usage: cl <sid>")
	r.AddCommand("bi", bufferInfoHandler(t), "Shows buffer state of a socket. usage: bi <sid>")
	return r
}

func IsUint16(num int) bool {
	return num >= 0 && num <= 65535
}

func parsePort(arg string) (uint16, error) {
	port, err := strconv.Atoi(arg)
	if err != nil {
		return 0, err
	}
	if !IsUint16(port) {
		return 0, fmt.Errorf("input %v is out of range", port)
	}
	return uint16(port), nil
}

func lookup(t *Stack, arg string) (*Socket, error) {
	id, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return nil, err
	}
	return t.Get(int32(id))
}

func acceptHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 2 {
			return fmt.Errorf("usage: a <port>")
		}
		port, err := parsePort(args[1])
		if err != nil {
			return err
		}

		listener, err := t.Listen(port)
		if err != nil {
			return err
		}
		fmt.Fprintf(config.Writer, "Created a listener socket with id %v on port %v\n", listener.ID(), listener.Port())

		go listener.AcceptLoop(func(s *Socket) {
			t.logger.Info("accepted", zap.Int32("listener", listener.ID()), zap.Int32("sid", s.ID()))
		})
		return nil
	}
}

func connectHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 3 {
			return fmt.Errorf("usage: c <addr> <port>")
		}
		addr, err := netip.ParseAddr(args[1])
		if err != nil {
			return err
		}
		port, err := parsePort(args[2])
		if err != nil {
			return err
		}

		s, err := t.Connect(netip.AddrPortFrom(addr, port))
		if err != nil {
			return err
		}
		fmt.Fprintf(config.Writer, "Created a new socket with id %v\n", s.ID())
		return nil
	}
}

func lsHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 1 {
			return fmt.Errorf("usage: ls")
		}

		_, err := io.WriteString(config.Writer, socketTableHeader)
		if err != nil {
			return fmt.Errorf("lsHandler cannot write the header: %w", err)
		}
		for _, row := range t.SocketTable() {
			if _, err := io.WriteString(config.Writer, row); err != nil {
				return fmt.Errorf("lsHandler cannot write sockets: %w", err)
			}
		}
		return nil
	}
}

func sendHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.SplitN(input, " ", 3)
		if len(args) != 3 {
			return fmt.Errorf("usage: s <sid> <data>")
		}
		s, err := lookup(t, args[1])
		if err != nil {
			return err
		}
		n, err := s.Write([]byte(args[2]))
		if err != nil {
			return err
		}
		fmt.Fprintf(config.Writer, "Queued %d bytes\n", n)
		return nil
	}
}

func syncSendHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.SplitN(input, " ", 3)
		if len(args) != 3 {
			return fmt.Errorf("usage: ss <sid> <data>")
		}
		s, err := lookup(t, args[1])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), replTimeout)
		defer cancel()
		n, err := s.WriteSync(ctx, []byte(args[2]))
		if err != nil {
			return err
		}
		fmt.Fprintf(config.Writer, "Sent %d bytes\n", n)
		return nil
	}
}

func readHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 3 {
			return fmt.Errorf("usage: r <sid> <n>")
		}
		s, err := lookup(t, args[1])
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		if size < 1 {
			return fmt.Errorf("input %v is out of range", size)
		}

		buf := make([]byte, size)
		n, err := s.Read(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(config.Writer, "Read %d bytes: %s\n", n, buf[:n])
		return nil
	}
}

func flushHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 2 {
			return fmt.Errorf("usage: f <sid>")
		}
		s, err := lookup(t, args[1])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), replTimeout)
		defer cancel()
		return s.Flush(ctx)
	}
}

func closeHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 2 {
			return fmt.Errorf("usage: cl <sid>")
		}
		id, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return err
		}
		return t.Close(int32(id))
	}
}

func bufferInfoHandler(t *Stack) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Split(input, " ")
		if len(args) != 2 {
			return fmt.Errorf("usage: bi <sid>")
		}
		s, err := lookup(t, args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(config.Writer, s.Info())
		return err
	}
}
