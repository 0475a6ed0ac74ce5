package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/dustin/go-humanize"
	"github.com/kahva/goferry/discovery"
	"github.com/kahva/goferry/logger"
	"github.com/kahva/goferry/styles"
)

// ClientOptions is the wiring a client needs; the CLI fills it from
// config defaults and flags.
type ClientOptions struct {
	Addr          string
	DiscoveryAddr string
	Dir           string
	ChunkSize     int
	AckTimeout    time.Duration
	LogPath       string
}

// Client ties one side of the tool together: discovery, the transfer
// engine, prompts and logging. The send and receive entry points each own
// their worker goroutines; the engine itself never touches the UI.
type Client struct {
	opts        ClientOptions
	log         logger.Logger
	broadcaster *discovery.Broadcaster

	// OnOffer decides whether an incoming connection may transfer.
	// Returning false closes the connection before any frame is read.
	OnOffer func(remote string) bool
}

func NewReceiverClient(opts ClientOptions) *Client {
	log := logger.New()
	log.Init(opts.LogPath)

	announce := fmt.Sprintf("%s%s", outboundIP(), opts.Addr)

	return &Client{
		opts:        opts,
		log:         log,
		broadcaster: discovery.New(opts.DiscoveryAddr, announce, log),
		OnOffer:     OnOffer,
	}
}

func NewSenderClient(opts ClientOptions) *Client {
	log := logger.New()
	log.Init(opts.LogPath)

	return &Client{
		opts:        opts,
		log:         log,
		broadcaster: discovery.NewListener(opts.DiscoveryAddr, log),
	}
}

// StartReceiver announces presence and serves transfers until ctx is
// done. Each accepted connection gets its own worker goroutine and its
// own session.
func (c *Client) StartReceiver(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.opts.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := c.broadcaster.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.WithErr(err).Error("discovery stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	fmt.Println(styles.INFO.Render("Listening on " + c.opts.Addr))
	c.log.WithStr("addr", c.opts.Addr).Info("receiver listening")

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

			c.log.WithErr(err).Warn("accept error")
			continue
		}

		go func(conn net.Conn) {
			defer conn.Close()
			c.handleConn(conn)
		}(conn)
	}
}

func (c *Client) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := c.log.WithStr("remote", remote)

	if c.OnOffer != nil && !c.OnOffer(remote) {
		log.Info("transfer declined")
		return
	}

	receiver := NewReceiver(c.opts.Dir)
	receiver.Bar = DefaultBar

	res, err := receiver.Receive(conn)
	if err != nil {
		log.WithErr(err).WithStr("phase", receiver.Phase().String()).Error("transfer aborted")
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("Transfer aborted: %v", err)))
		if res != nil {
			printMismatch(res)
		}
		return
	}

	log.
		WithUint64("items", res.ItemsReceived).
		WithUint64("bytes", res.BytesReceived).
		Info("transfer complete")

	fmt.Println(styles.SUCCESS.Render(fmt.Sprintf(
		"Received %d items (%s)",
		res.ItemsReceived,
		humanize.Bytes(res.BytesReceived),
	)))
}

// StartSender transfers root to peers found via discovery, or straight to
// `direct` when given. The declared totals are snapshotted here, before
// anything is dialed.
func (c *Client) StartSender(ctx context.Context, root, direct string) error {
	req, err := NewTransferRequest(root)
	if err != nil {
		return err
	}

	c.log.
		WithStr("root", root).
		WithUint64("items", req.Items).
		WithUint64("bytes", req.Bytes).
		Info("transfer prepared")

	if direct != "" {
		return c.sendTo(ctx, direct, req)
	}

	go func() {
		if err := c.broadcaster.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.WithErr(err).Error("discovery stopped")
		}
	}()

	selector := NewPeerSelector(c.broadcaster.Peers)

	for {
		spinner.New().
			Title("Scanning for peers...").
			Action(func() { time.Sleep(2 * discovery.DefaultHelloInterval) }).
			Run()

		if err := selector.RunRecur(); err != nil {
			if errors.Is(err, ErrCanceled) {
				return nil
			}
			return err
		}

		if len(selector.Selected) == 0 {
			if Continue("No peers were selected, try again?") {
				continue
			}
			return nil
		}

		for _, peer := range selector.Selected {
			if err := c.sendTo(ctx, peer.Addr, req); err != nil {
				return err
			}
		}

		if !Continue("Send to more peers?") {
			return nil
		}
		selector.ClearSelection()
	}
}

func (c *Client) sendTo(ctx context.Context, addr string, req *TransferRequest) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	// A user abort cancels ctx; closing the socket unblocks the worker.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	fmt.Println(styles.INFO.Render(fmt.Sprintf(
		"Sending %d items (%s) to %s",
		req.Items,
		humanize.Bytes(req.Bytes),
		addr,
	)))

	sender := NewSender()
	if c.opts.ChunkSize > 0 {
		sender.ChunkSize = c.opts.ChunkSize
	}
	if c.opts.AckTimeout > 0 {
		sender.AckTimeout = c.opts.AckTimeout
	}
	sender.Bar = DefaultBar

	res, err := sender.Send(conn, req)
	if err != nil {
		c.log.WithErr(err).WithStr("phase", sender.Phase().String()).Error("send aborted")
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("Transfer aborted: %v", err)))
		if res != nil {
			printMismatch(res)
		}
		return err
	}

	c.log.WithStr("addr", addr).Info("send complete")
	fmt.Println(styles.SUCCESS.Render("Transfer complete"))
	return nil
}

func printMismatch(res *VerificationResult) {
	fmt.Println(styles.WARNING.Render(fmt.Sprintf(
		"Expected %d items / %s, got %d items / %s",
		res.ItemsExpected, humanize.Bytes(res.BytesExpected),
		res.ItemsReceived, humanize.Bytes(res.BytesReceived),
	)))
}

func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
