package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Version is bumped on any wire-incompatible change.
	Version uint8 = 0x21
	VERSION       = "2.1"

	TypeTransferHeader uint8 = 0x01
	TypeEntryHeader    uint8 = 0x02
	TypeChunk          uint8 = 0x03
	TypeHandshake      uint8 = 0x04
	TypeAck            uint8 = 0x05

	// PreambleSize is version(1) + type(1) + length(8) + reserved(2).
	PreambleSize = 12

	DefaultChunkSize = 64 * 1024
	MaxChunkSize     = 16 * 1024 * 1024
	MaxPathLength    = 4096

	handshakeSize = 16
	ackSize       = 17
)

// TransferKind distinguishes a single-file transfer from a folder transfer.
type TransferKind uint8

const (
	KindFile   TransferKind = 0x01
	KindFolder TransferKind = 0x02
)

// EntryKind is the kind of one manifest entry within a folder transfer.
type EntryKind uint8

const (
	EntryFile EntryKind = 0x01
	EntryDir  EntryKind = 0x02
)

// Frame is the closed union of protocol messages. Every frame is
// self-describing on the wire: a fixed preamble followed by a
// length-prefixed payload, so the reader never guesses boundaries.
type Frame interface {
	frameType() uint8
}

// TransferHeader opens a session. File mode declares the single name and
// size up front; folder mode declares nothing, the entries follow.
type TransferHeader struct {
	Kind TransferKind
	Name string
	Size uint64
}

// EntryHeader precedes the data of one manifest entry. Path is
// slash-separated and relative to the destination root.
type EntryHeader struct {
	Kind EntryKind
	Size uint64
	Path string
}

// Chunk carries raw file bytes for the entry currently being received.
type Chunk struct {
	Data []byte
}

// Handshake is the sender's final declaration of folder totals.
type Handshake struct {
	Items uint64
	Bytes uint64
}

// Ack is the receiver's reply to Handshake with its own totals.
type Ack struct {
	Items   uint64
	Bytes   uint64
	Matched bool
}

func (*TransferHeader) frameType() uint8 { return TypeTransferHeader }
func (*EntryHeader) frameType() uint8    { return TypeEntryHeader }
func (*Chunk) frameType() uint8          { return TypeChunk }
func (*Handshake) frameType() uint8      { return TypeHandshake }
func (*Ack) frameType() uint8            { return TypeAck }

// preamble is the fixed 12-byte frame prefix.
type preamble struct {
	Version  uint8
	Type     uint8
	Length   uint64
	Reserved uint16
}

// Codec serializes and deserializes frames. It holds no state; Encode and
// Decode are inverse operations for every valid frame.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes a frame to its full wire form, preamble included.
func (c *Codec) Encode(f Frame) ([]byte, error) {
	payload, err := c.encodePayload(f)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, PreambleSize+len(payload)))
	p := preamble{
		Version: Version,
		Type:    f.frameType(),
		Length:  uint64(len(payload)),
	}
	if err := binary.Write(buf, binary.BigEndian, p); err != nil {
		return nil, fmt.Errorf("failed to write preamble: %w", err)
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// Decode deserializes one full frame from data. The inverse of Encode.
func (c *Codec) Decode(data []byte) (Frame, error) {
	if len(data) < PreambleSize {
		return nil, fmt.Errorf("%w: frame shorter than preamble", ErrMalformedFrame)
	}

	var p preamble
	if err := binary.Read(bytes.NewReader(data[:PreambleSize]), binary.BigEndian, &p); err != nil {
		return nil, fmt.Errorf("failed to read preamble: %w", err)
	}
	if err := c.validatePreamble(&p); err != nil {
		return nil, err
	}
	if uint64(len(data)-PreambleSize) < p.Length {
		return nil, ErrPayloadTruncated
	}

	return c.decodePayload(p.Type, data[PreambleSize:PreambleSize+int(p.Length)])
}

// WriteFrame encodes f and writes it to w in a single Write call, so two
// directions on one connection never interleave inside a frame boundary.
func (c *Codec) WriteFrame(w io.Writer, f Frame) error {
	encoded, err := c.Encode(f)
	if err != nil {
		return err
	}

	_, err = w.Write(encoded)
	return err
}

// ReadFrame reads exactly one frame from a streaming reader.
func (c *Codec) ReadFrame(r io.Reader) (Frame, error) {
	buf := make([]byte, PreambleSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	var p preamble
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &p); err != nil {
		return nil, fmt.Errorf("failed to read preamble: %w", err)
	}
	if err := c.validatePreamble(&p); err != nil {
		return nil, err
	}

	payload := make([]byte, p.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return c.decodePayload(p.Type, payload)
}

func (c *Codec) validatePreamble(p *preamble) error {
	if p.Version != Version {
		return ErrInvalidVersion
	}
	if p.Reserved != 0 {
		return ErrReservedFieldUsed
	}

	var max uint64
	switch p.Type {
	case TypeTransferHeader, TypeEntryHeader:
		max = 1 + 8 + 4 + MaxPathLength
	case TypeChunk:
		max = MaxChunkSize
	case TypeHandshake:
		max = handshakeSize
	case TypeAck:
		max = ackSize
	default:
		return ErrInvalidType
	}

	if p.Length > max {
		return ErrPayloadTooLarge
	}
	return nil
}

func (c *Codec) encodePayload(f Frame) ([]byte, error) {
	switch f := f.(type) {
	case *TransferHeader:
		return c.encodeTransferHeader(f)
	case *EntryHeader:
		return c.encodeEntryHeader(f)
	case *Chunk:
		if len(f.Data) > MaxChunkSize {
			return nil, ErrPayloadTooLarge
		}
		return f.Data, nil
	case *Handshake:
		buf := bytes.NewBuffer(make([]byte, 0, handshakeSize))
		binary.Write(buf, binary.BigEndian, f.Items)
		binary.Write(buf, binary.BigEndian, f.Bytes)
		return buf.Bytes(), nil
	case *Ack:
		buf := bytes.NewBuffer(make([]byte, 0, ackSize))
		binary.Write(buf, binary.BigEndian, f.Items)
		binary.Write(buf, binary.BigEndian, f.Bytes)
		matched := uint8(0)
		if f.Matched {
			matched = 1
		}
		buf.WriteByte(matched)
		return buf.Bytes(), nil
	default:
		return nil, ErrInvalidType
	}
}

func (c *Codec) encodeTransferHeader(h *TransferHeader) ([]byte, error) {
	switch h.Kind {
	case KindFolder:
		if h.Name != "" || h.Size != 0 {
			return nil, fmt.Errorf("%w: folder header carries no name or size", ErrMalformedFrame)
		}
		return []byte{byte(h.Kind)}, nil
	case KindFile:
		if err := validateWirePath(h.Name); err != nil {
			return nil, err
		}

		buf := bytes.NewBuffer(make([]byte, 0, 1+8+4+len(h.Name)))
		buf.WriteByte(byte(h.Kind))
		binary.Write(buf, binary.BigEndian, h.Size)
		binary.Write(buf, binary.BigEndian, uint32(len(h.Name)))
		buf.WriteString(h.Name)
		return buf.Bytes(), nil
	default:
		return nil, ErrInvalidKind
	}
}

func (c *Codec) encodeEntryHeader(e *EntryHeader) ([]byte, error) {
	if e.Kind != EntryFile && e.Kind != EntryDir {
		return nil, ErrInvalidKind
	}
	if e.Kind == EntryDir && e.Size != 0 {
		return nil, fmt.Errorf("%w: directory entry declares a size", ErrMalformedFrame)
	}
	if err := validateWirePath(e.Path); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, 1+8+4+len(e.Path)))
	buf.WriteByte(byte(e.Kind))
	binary.Write(buf, binary.BigEndian, e.Size)
	binary.Write(buf, binary.BigEndian, uint32(len(e.Path)))
	buf.WriteString(e.Path)
	return buf.Bytes(), nil
}

func (c *Codec) decodePayload(frameType uint8, payload []byte) (Frame, error) {
	switch frameType {
	case TypeTransferHeader:
		return c.decodeTransferHeader(payload)
	case TypeEntryHeader:
		return c.decodeEntryHeader(payload)
	case TypeChunk:
		return &Chunk{Data: payload}, nil
	case TypeHandshake:
		if len(payload) != handshakeSize {
			return nil, fmt.Errorf("%w: handshake payload must be %d bytes", ErrMalformedFrame, handshakeSize)
		}
		return &Handshake{
			Items: binary.BigEndian.Uint64(payload[0:8]),
			Bytes: binary.BigEndian.Uint64(payload[8:16]),
		}, nil
	case TypeAck:
		if len(payload) != ackSize {
			return nil, fmt.Errorf("%w: ack payload must be %d bytes", ErrMalformedFrame, ackSize)
		}
		if payload[16] > 1 {
			return nil, fmt.Errorf("%w: invalid matched flag", ErrMalformedFrame)
		}
		return &Ack{
			Items:   binary.BigEndian.Uint64(payload[0:8]),
			Bytes:   binary.BigEndian.Uint64(payload[8:16]),
			Matched: payload[16] == 1,
		}, nil
	default:
		return nil, ErrInvalidType
	}
}

func (c *Codec) decodeTransferHeader(payload []byte) (Frame, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty transfer header", ErrMalformedFrame)
	}

	kind := TransferKind(payload[0])
	switch kind {
	case KindFolder:
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: folder header carries no name or size", ErrMalformedFrame)
		}
		return &TransferHeader{Kind: KindFolder}, nil
	case KindFile:
		if len(payload) < 1+8+4 {
			return nil, fmt.Errorf("%w: file header too short", ErrMalformedFrame)
		}
		size := binary.BigEndian.Uint64(payload[1:9])
		nameLen := binary.BigEndian.Uint32(payload[9:13])
		if int(nameLen) != len(payload)-13 {
			return nil, ErrPayloadTruncated
		}
		name := string(payload[13:])
		if err := validateWirePath(name); err != nil {
			return nil, err
		}
		return &TransferHeader{Kind: KindFile, Name: name, Size: size}, nil
	default:
		return nil, ErrInvalidKind
	}
}

func (c *Codec) decodeEntryHeader(payload []byte) (Frame, error) {
	if len(payload) < 1+8+4 {
		return nil, fmt.Errorf("%w: entry header too short", ErrMalformedFrame)
	}

	kind := EntryKind(payload[0])
	if kind != EntryFile && kind != EntryDir {
		return nil, ErrInvalidKind
	}

	size := binary.BigEndian.Uint64(payload[1:9])
	pathLen := binary.BigEndian.Uint32(payload[9:13])
	if int(pathLen) != len(payload)-13 {
		return nil, ErrPayloadTruncated
	}
	if kind == EntryDir && size != 0 {
		return nil, fmt.Errorf("%w: directory entry declares a size", ErrMalformedFrame)
	}

	path := string(payload[13:])
	if err := validateWirePath(path); err != nil {
		return nil, err
	}

	return &EntryHeader{Kind: kind, Size: size, Path: path}, nil
}

func validateWirePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	return nil
}
