package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

const DefaultAckTimeout = 30 * time.Second

// Sender drives the send side of one transfer session: header, entries
// and data in manifest order, then for folders a single Handshake and a
// bounded wait for the Acknowledgment.
type Sender struct {
	session

	ChunkSize  int
	AckTimeout time.Duration

	// Bar, when set, renders a per-entry progress bar.
	Bar BarFunc
}

func NewSender() *Sender {
	return &Sender{
		session:    newSession(),
		ChunkSize:  DefaultChunkSize,
		AckTimeout: DefaultAckTimeout,
	}
}

// Send runs the transfer described by req over conn. For folder transfers
// the returned result carries the receiver's acknowledged totals; file
// transfers complete without a handshake and return a nil result.
func (s *Sender) Send(conn io.ReadWriter, req *TransferRequest) (*VerificationResult, error) {
	switch req.Kind {
	case KindFile:
		if err := s.sendFile(conn, req); err != nil {
			s.abort()
			return nil, err
		}
		return nil, nil
	case KindFolder:
		res, err := s.sendFolder(conn, req)
		if err != nil {
			s.abort()
			return res, err
		}
		return res, nil
	default:
		return nil, ErrInvalidKind
	}
}

func (s *Sender) sendFile(conn io.Writer, req *TransferRequest) error {
	hd := &TransferHeader{Kind: KindFile, Name: req.name, Size: uint64(req.size)}
	if err := s.codec.WriteFrame(conn, hd); err != nil {
		return fmt.Errorf("failed to write transfer header: %w", err)
	}

	s.setPhase(PhaseReceivingData)
	if err := s.streamFile(conn, req.Root, uint64(req.size), req.name); err != nil {
		return err
	}
	s.tally.AddItem()

	s.setPhase(PhaseComplete)
	return nil
}

func (s *Sender) sendFolder(conn io.ReadWriter, req *TransferRequest) (*VerificationResult, error) {
	hd := &TransferHeader{Kind: KindFolder}
	if err := s.codec.WriteFrame(conn, hd); err != nil {
		return nil, fmt.Errorf("failed to write transfer header: %w", err)
	}

	s.setPhase(PhaseReceivingEntries)
	for _, entry := range req.manifest.Entries {
		if err := s.sendEntry(conn, req.Root, entry); err != nil {
			return nil, err
		}
	}

	// Declared totals were fixed at enumeration time; the handshake
	// restates them, it never recounts.
	if err := s.codec.WriteFrame(conn, &Handshake{Items: req.Items, Bytes: req.Bytes}); err != nil {
		return nil, fmt.Errorf("failed to write handshake: %w", err)
	}

	s.setPhase(PhaseAwaitingHandshake)
	ack, err := s.awaitAck(conn)
	if err != nil {
		return nil, err
	}

	s.setPhase(PhaseVerifying)
	res := &VerificationResult{
		ItemsExpected: req.Items,
		ItemsReceived: ack.Items,
		BytesExpected: req.Bytes,
		BytesReceived: ack.Bytes,
		Matched:       ack.Matched,
	}

	if !res.Matched {
		return res, fmt.Errorf(
			"%w: declared %d items/%d bytes, receiver got %d items/%d bytes",
			ErrVerificationMismatch,
			res.ItemsExpected, res.BytesExpected,
			res.ItemsReceived, res.BytesReceived,
		)
	}

	s.setPhase(PhaseComplete)
	return res, nil
}

func (s *Sender) sendEntry(conn io.Writer, root string, entry ManifestEntry) error {
	eh := &EntryHeader{Kind: entry.Kind, Size: uint64(entry.Size), Path: entry.Path}
	if err := s.codec.WriteFrame(conn, eh); err != nil {
		return fmt.Errorf("failed to write entry header: %w", err)
	}

	if entry.Kind == EntryDir {
		s.tally.AddItem()
		return nil
	}

	if entry.Size > 0 {
		s.setPhase(PhaseReceivingData)
		abs := filepath.Join(root, filepath.FromSlash(entry.Path))
		if err := s.streamFile(conn, abs, uint64(entry.Size), entry.Path); err != nil {
			return err
		}
		s.setPhase(PhaseReceivingEntries)
	}

	s.tally.AddItem()
	return nil
}

// streamFile sends exactly size bytes of path as chunk frames. The size
// was snapshotted at enumeration time; a file that shrank since then is a
// size mismatch, and one that grew is truncated to the declared size.
func (s *Sender) streamFile(conn io.Writer, path string, size uint64, desc string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var bar io.Writer = io.Discard
	if s.Bar != nil {
		bar = s.Bar(int64(size), desc)
	}

	src := io.LimitReader(file, int64(size))
	buf := make([]byte, s.ChunkSize)
	var sent uint64

	for sent < size {
		n, err := src.Read(buf)
		if n > 0 {
			if err := s.codec.WriteFrame(conn, &Chunk{Data: buf[:n]}); err != nil {
				return fmt.Errorf("failed to write chunk: %w", err)
			}
			sent += uint64(n)
			s.tally.AddBytes(uint64(n))
			bar.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if sent != size {
		return fmt.Errorf("%w: %s declared %d bytes, read %d", ErrSizeMismatch, path, size, sent)
	}
	return nil
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// awaitAck blocks for the receiver's acknowledgment, but never longer
// than AckTimeout. Connections without deadline support (plain pipes) are
// bounded with a timer instead.
func (s *Sender) awaitAck(conn io.Reader) (*Ack, error) {
	if d, ok := conn.(readDeadliner); ok {
		d.SetReadDeadline(time.Now().Add(s.AckTimeout))
		defer d.SetReadDeadline(time.Time{})

		frame, err := s.codec.ReadFrame(conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrAckTimeout
			}
			return nil, fmt.Errorf("failed to read ack: %w", err)
		}
		return toAck(frame)
	}

	type result struct {
		frame Frame
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		frame, err := s.codec.ReadFrame(conn)
		ch <- result{frame, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to read ack: %w", r.err)
		}
		return toAck(r.frame)
	case <-time.After(s.AckTimeout):
		return nil, ErrAckTimeout
	}
}

func toAck(frame Frame) (*Ack, error) {
	ack, ok := frame.(*Ack)
	if !ok {
		return nil, fmt.Errorf("%w: want ack, got %T", ErrUnexpectedFrame, frame)
	}
	return ack, nil
}
