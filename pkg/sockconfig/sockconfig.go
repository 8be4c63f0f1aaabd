package sockconfig

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultCapacity  = 4096
	DefaultSegment   = 1024
	DefaultReadChunk = 4096
)

// Config holds what a config file can say about a socket stack.
// Sockets are created at runtime; these values are only read at startup.
type Config struct {
	// initial capacity of every socket's send and receive buffers
	Capacity int
	// largest run handed to a single conn.Write
	Segment int
	// size of each conn.Read on the receive path
	ReadChunk int

	Listen  []uint16
	Connect []netip.AddrPort

	LogLevel zapcore.Level
}

func Default() *Config {
	return &Config{
		Capacity:  DefaultCapacity,
		Segment:   DefaultSegment,
		ReadChunk: DefaultReadChunk,
		Listen:    make([]uint16, 0),
		Connect:   make([]netip.AddrPort, 0),
		LogLevel:  zapcore.InfoLevel,
	}
}

type ParseFunc func(int, string, *Config) error

var parseCommands = map[string]ParseFunc{
	"capacity":   parseSize(func(c *Config, n int) { c.Capacity = n }),
	"segment":    parseSize(func(c *Config, n int) { c.Segment = n }),
	"read-chunk": parseSize(func(c *Config, n int) { c.ReadChunk = n }),
	"listen":     parseListen,
	"connect":    parseConnect,
	"log-level":  parseLogLevel,
}

func parseSize(set func(*Config, int)) ParseFunc {
	return func(ln int, line string, config *Config) error {
		tokens := strings.Fields(line)
		if len(tokens) != 2 {
			return newErrString(ln, "Usage:  %s <bytes>", tokens[0])
		}
		n, err := strconv.Atoi(tokens[1])
		if err != nil {
			return newErr(ln, err)
		}
		if n < 1 {
			return newErrString(ln, "%s must be positive, got %d", tokens[0], n)
		}
		set(config, n)
		return nil
	}
}

func parseListen(ln int, line string, config *Config) error {
	var port int
	r := strings.NewReader(line)
	n, err := fmt.Fscanf(r, "listen %d", &port)
	if err != nil {
		return err
	}
	if n != 1 {
		return newErrString(ln, "listen directive must have format:  listen <port>")
	}
	if port < 0 || port > 65535 {
		return newErrString(ln, "port %d is out of range", port)
	}
	for _, p := range config.Listen {
		if p == uint16(port) {
			return newErrString(ln, "port %d listed twice", port)
		}
	}
	config.Listen = append(config.Listen, uint16(port))
	return nil
}

func parseConnect(ln int, line string, config *Config) error {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return newErrString(ln, "Usage:  connect <addr:port>")
	}
	addrPort, err := netip.ParseAddrPort(tokens[1])
	if err != nil {
		return err
	}
	config.Connect = append(config.Connect, addrPort)
	return nil
}

func parseLogLevel(ln int, line string, config *Config) error {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return newErrString(ln, "Usage:  log-level <debug|info|warn|error>")
	}
	level, err := zapcore.ParseLevel(tokens[1])
	if err != nil {
		return err
	}
	config.LogLevel = level
	return nil
}

func newErrString(line int, msg string, args ...any) error {
	_msg := fmt.Sprintf(msg, args...)
	return errors.Errorf("Parse error on line %d:  %s", line, _msg)
}

func newErr(line int, err error) error {
	return errors.Wrapf(err, "Parse error on line %d", line)
}

// Parse reads directives from r on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	config := Default()

	scanner := bufio.NewScanner(r)
	ln := 0
	for scanner.Scan() {
		ln++

		line := strings.TrimSpace(scanner.Text())
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}

		// Skip comments
		head := tokens[0]
		if head[0] == '#' {
			continue
		}

		pf, found := parseCommands[head]
		if !found {
			return nil, newErrString(ln, "Unrecognized token %s", head)
		}
		if err := pf(ln, line, config); err != nil {
			return nil, newErr(ln, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return config, nil
}

// ParseConfig parses a configuration file.
func ParseConfig(configFile string) (*Config, error) {
	fd, err := os.Open(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open file")
	}
	defer fd.Close()
	return Parse(fd)
}
