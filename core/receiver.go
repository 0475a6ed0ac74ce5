package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Receiver drives the receive side of one transfer session. One instance
// per connection; not reusable after Receive returns.
type Receiver struct {
	session
	dir string

	// Bar, when set, renders a per-entry progress bar.
	Bar BarFunc
}

func NewReceiver(dir string) *Receiver {
	if dir == "" {
		dir = "./"
	}

	return &Receiver{
		session: newSession(),
		dir:     dir,
	}
}

// Receive runs the session to a terminal phase. The returned
// VerificationResult is non-nil whenever verification was reached, even
// when it failed; err reports why the session aborted.
func (r *Receiver) Receive(conn io.ReadWriter) (*VerificationResult, error) {
	r.setPhase(PhaseAwaitingHeader)

	frame, err := r.codec.ReadFrame(conn)
	if err != nil {
		r.abort()
		return nil, fmt.Errorf("failed to read transfer header: %w", err)
	}

	hd, ok := frame.(*TransferHeader)
	if !ok {
		r.abort()
		return nil, fmt.Errorf("%w: want transfer header, got %T", ErrUnexpectedFrame, frame)
	}

	switch hd.Kind {
	case KindFile:
		res, err := r.receiveFile(conn, hd)
		if err != nil {
			r.abort()
			return nil, err
		}
		return res, nil
	case KindFolder:
		res, err := r.receiveFolder(conn)
		if err != nil {
			r.abort()
			return res, err
		}
		return res, nil
	default:
		r.abort()
		return nil, ErrInvalidKind
	}
}

func (r *Receiver) receiveFile(conn io.Reader, hd *TransferHeader) (*VerificationResult, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, err
	}

	// Strip any directory component a peer may have left on the name.
	path := uniquePath(filepath.Join(r.dir, filepath.Base(filepath.FromSlash(hd.Name))))

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r.dst = file

	r.setPhase(PhaseReceivingData)
	if err := r.copyChunks(conn, file, hd.Size, filepath.Base(path)); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, err
	}
	r.dst = nil
	r.tally.AddItem()

	r.setPhase(PhaseComplete)
	return r.tally.Verify(1, hd.Size), nil
}

func (r *Receiver) receiveFolder(conn io.ReadWriter) (*VerificationResult, error) {
	r.setPhase(PhaseReceivingEntries)

	for {
		frame, err := r.codec.ReadFrame(conn)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}

		switch f := frame.(type) {
		case *EntryHeader:
			if err := r.receiveEntry(conn, f); err != nil {
				return nil, err
			}

		case *Handshake:
			r.setPhase(PhaseAwaitingHandshake)
			return r.verify(conn, f)

		default:
			return nil, fmt.Errorf("%w: %T while receiving entries", ErrUnexpectedFrame, frame)
		}
	}
}

func (r *Receiver) receiveEntry(conn io.Reader, entry *EntryHeader) error {
	path, err := r.destPath(entry.Path)
	if err != nil {
		return err
	}

	if entry.Kind == EntryDir {
		// Entries arrive in manifest order, so this directory exists
		// before any file nested under it is written.
		if err := os.MkdirAll(path, 0755); err != nil {
			return err
		}
		r.tally.AddItem()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	r.dst = file

	// A zero-byte file is complete at creation; no chunk frame follows.
	if entry.Size > 0 {
		r.setPhase(PhaseReceivingData)
		if err := r.copyChunks(conn, file, entry.Size, entry.Path); err != nil {
			return err
		}
		r.setPhase(PhaseReceivingEntries)
	}

	if err := file.Close(); err != nil {
		return err
	}
	r.dst = nil
	r.tally.AddItem()

	return nil
}

// copyChunks consumes Chunk frames until exactly size bytes have been
// written. A chunk overshooting the declared size is a size mismatch, not
// something to silently clamp.
func (r *Receiver) copyChunks(conn io.Reader, dst io.Writer, size uint64, desc string) error {
	var sink io.Writer = dst
	if r.Bar != nil {
		sink = io.MultiWriter(dst, r.Bar(int64(size), desc))
	}

	remaining := size
	for remaining > 0 {
		frame, err := r.codec.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("failed to read chunk: %w", err)
		}

		chunk, ok := frame.(*Chunk)
		if !ok {
			return fmt.Errorf("%w: %T while receiving data", ErrUnexpectedFrame, frame)
		}
		if uint64(len(chunk.Data)) > remaining {
			return fmt.Errorf("%w: chunk of %d bytes with %d remaining", ErrSizeMismatch, len(chunk.Data), remaining)
		}

		if _, err := sink.Write(chunk.Data); err != nil {
			return err
		}

		remaining -= uint64(len(chunk.Data))
		r.tally.AddBytes(uint64(len(chunk.Data)))
	}

	return nil
}

func (r *Receiver) verify(conn io.ReadWriter, h *Handshake) (*VerificationResult, error) {
	r.setPhase(PhaseVerifying)

	res := r.tally.Verify(h.Items, h.Bytes)

	ack := &Ack{Items: res.ItemsReceived, Bytes: res.BytesReceived, Matched: res.Matched}
	if err := r.codec.WriteFrame(conn, ack); err != nil {
		return res, fmt.Errorf("failed to write ack: %w", err)
	}

	if !res.Matched {
		return res, fmt.Errorf(
			"%w: declared %d items/%d bytes, received %d items/%d bytes",
			ErrVerificationMismatch,
			res.ItemsExpected, res.BytesExpected,
			res.ItemsReceived, res.BytesReceived,
		)
	}

	r.setPhase(PhaseComplete)
	return res, nil
}

// destPath joins a wire path onto the destination dir, refusing anything
// that would land outside it.
func (r *Receiver) destPath(wirePath string) (string, error) {
	local := filepath.FromSlash(wirePath)
	if filepath.IsAbs(local) || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, wirePath)
	}
	return filepath.Join(r.dir, local), nil
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
