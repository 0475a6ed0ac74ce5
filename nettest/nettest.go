// Package nettest is the throughput benchmark mode: a raw byte blast
// with no transfer-protocol semantics, kept apart from the engine on
// purpose.
package nettest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kahva/goferry/logger"
	"github.com/kahva/goferry/progress"
)

const (
	// helloPrefix opens a benchmark connection: "NET_TEST|<size>\n".
	helloPrefix = "NET_TEST"

	DefaultSize      = 100 * 1024 * 1024
	DefaultChunkSize = 64 * 1024

	maxBenchSize = 10 * 1024 * 1024 * 1024
)

var ErrMalformedHello = errors.New("malformed benchmark hello")

// Result is one completed benchmark run.
type Result struct {
	Bytes   int64
	Elapsed time.Duration
}

// Throughput reports MB/s.
func (r *Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds() / (1024 * 1024)
}

type Server struct {
	log logger.Logger
}

func NewServer(log logger.Logger) *Server {
	return &Server{log: log}
}

// Start listens on addr and serves benchmark runs until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.WithStr("addr", ln.Addr().String()).Info("benchmark server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.log.WithErr(err).Warn("accept error")
			continue
		}

		go func(conn net.Conn) {
			defer conn.Close()
			if err := s.handle(conn); err != nil {
				s.log.WithErr(err).Warn("benchmark run failed")
			}
		}(conn)
	}
}

func (s *Server) handle(conn net.Conn) error {
	reader := bufio.NewReader(conn)

	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	size, err := parseHello(line)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := io.CopyN(io.Discard, reader, size); err != nil {
		return err
	}
	elapsed := time.Since(start)

	res := &Result{Bytes: size, Elapsed: elapsed}
	s.log.
		WithUint64("bytes", uint64(size)).
		WithStr("throughput", fmt.Sprintf("%.2f MB/s", res.Throughput())).
		Info("benchmark run complete")

	_, err = fmt.Fprintf(conn, "OK|%d\n", elapsed.Nanoseconds())
	return err
}

func parseHello(line string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) != 2 || parts[0] != helloPrefix {
		return 0, ErrMalformedHello
	}

	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size <= 0 || size > maxBenchSize {
		return 0, ErrMalformedHello
	}

	return size, nil
}

type Client struct {
	Size      int64
	ChunkSize int

	log logger.Logger

	// Quiet suppresses the progress bar, for tests.
	Quiet bool
}

func NewClient(size int64, log logger.Logger) *Client {
	if size <= 0 {
		size = DefaultSize
	}
	return &Client{
		Size:      size,
		ChunkSize: DefaultChunkSize,
		log:       log,
	}
}

// Run blasts Size bytes at the server and reports the round measured on
// this side. The server's own timing comes back on the reply line and is
// only logged.
func (c *Client) Run(ctx context.Context, addr string) (*Result, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if _, err := fmt.Fprintf(conn, "%s|%d\n", helloPrefix, c.Size); err != nil {
		return nil, err
	}

	var sink io.Writer = conn
	var prog *progress.Progress
	if !c.Quiet {
		prog = progress.New()
		bar := prog.ByteBar(c.Size, "bench")
		sink = prog.ProxyWriter(bar, conn)
	}

	buf := make([]byte, c.ChunkSize)
	remaining := c.Size

	start := time.Now()
	for remaining > 0 {
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		if _, err := sink.Write(buf[:n]); err != nil {
			return nil, err
		}
		remaining -= n
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if prog != nil {
		prog.Wait()
	}

	c.log.WithStr("server", strings.TrimSpace(reply)).Debug("benchmark reply")

	return &Result{Bytes: c.Size, Elapsed: elapsed}, nil
}
