package core

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "file transfer header",
			frame: &TransferHeader{Kind: KindFile, Name: "report.pdf", Size: 4096},
		},
		{
			name:  "file transfer header zero size",
			frame: &TransferHeader{Kind: KindFile, Name: "empty.txt", Size: 0},
		},
		{
			name:  "file transfer header unicode name",
			frame: &TransferHeader{Kind: KindFile, Name: "测试文件.txt", Size: 17},
		},
		{
			name:  "folder transfer header",
			frame: &TransferHeader{Kind: KindFolder},
		},
		{
			name:  "file entry",
			frame: &EntryHeader{Kind: EntryFile, Size: 1000000, Path: "sub/b.bin"},
		},
		{
			name:  "zero byte file entry",
			frame: &EntryHeader{Kind: EntryFile, Size: 0, Path: "empty.txt"},
		},
		{
			name:  "directory entry",
			frame: &EntryHeader{Kind: EntryDir, Size: 0, Path: "sub"},
		},
		{
			name:  "chunk",
			frame: &Chunk{Data: []byte("hello")},
		},
		{
			name:  "empty chunk",
			frame: &Chunk{Data: []byte{}},
		},
		{
			name:  "handshake",
			frame: &Handshake{Items: 4, Bytes: 1000005},
		},
		{
			name:  "handshake zero totals",
			frame: &Handshake{},
		},
		{
			name:  "ack matched",
			frame: &Ack{Items: 4, Bytes: 1000005, Matched: true},
		},
		{
			name:  "ack mismatched",
			frame: &Ack{Items: 3, Bytes: 5, Matched: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := c.Encode(tt.frame)
			require.NoError(t, err)

			decoded, err := c.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.frame, decoded)
		})
	}
}

func TestEncodeInvalid(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "folder header with name",
			frame: &TransferHeader{Kind: KindFolder, Name: "oops"},
		},
		{
			name:  "file header without name",
			frame: &TransferHeader{Kind: KindFile, Size: 10},
		},
		{
			name:  "invalid transfer kind",
			frame: &TransferHeader{Kind: 0x99},
		},
		{
			name:  "entry without path",
			frame: &EntryHeader{Kind: EntryFile, Size: 10},
		},
		{
			name:  "entry path too long",
			frame: &EntryHeader{Kind: EntryFile, Path: strings.Repeat("a", MaxPathLength+1)},
		},
		{
			name:  "directory entry with size",
			frame: &EntryHeader{Kind: EntryDir, Size: 1, Path: "sub"},
		},
		{
			name:  "invalid entry kind",
			frame: &EntryHeader{Kind: 0x99, Path: "sub"},
		},
		{
			name:  "oversized chunk",
			frame: &Chunk{Data: make([]byte, MaxChunkSize+1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.frame)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	c := NewCodec()

	valid, err := c.Encode(&Handshake{Items: 1, Bytes: 2})
	require.NoError(t, err)

	badVersion := bytes.Clone(valid)
	badVersion[0] = 0x99

	badType := bytes.Clone(valid)
	badType[1] = 0xAA

	badReserved := bytes.Clone(valid)
	badReserved[10] = 1

	badLength := bytes.Clone(valid)
	binary.BigEndian.PutUint64(badLength[2:10], MaxChunkSize+1)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "short preamble", data: valid[:PreambleSize-1]},
		{name: "invalid version", data: badVersion},
		{name: "invalid type", data: badType},
		{name: "reserved field used", data: badReserved},
		{name: "declared length exceeds bound", data: badLength},
		{name: "truncated payload", data: valid[:len(valid)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeInvalidPayloads(t *testing.T) {
	c := NewCodec()

	encode := func(frameType uint8, payload []byte) []byte {
		buf := &bytes.Buffer{}
		buf.WriteByte(Version)
		buf.WriteByte(frameType)
		binary.Write(buf, binary.BigEndian, uint64(len(payload)))
		binary.Write(buf, binary.BigEndian, uint16(0))
		buf.Write(payload)
		return buf.Bytes()
	}

	tests := []struct {
		name      string
		frameType uint8
		payload   []byte
	}{
		{name: "empty transfer header", frameType: TypeTransferHeader, payload: []byte{}},
		{name: "unknown transfer kind", frameType: TypeTransferHeader, payload: []byte{0x77}},
		{name: "file header too short", frameType: TypeTransferHeader, payload: []byte{byte(KindFile), 0, 0}},
		{
			name:      "file header name length lies",
			frameType: TypeTransferHeader,
			payload: append(
				[]byte{byte(KindFile), 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 99},
				[]byte("a.txt")...,
			),
		},
		{name: "entry header too short", frameType: TypeEntryHeader, payload: []byte{byte(EntryFile)}},
		{name: "short handshake", frameType: TypeHandshake, payload: make([]byte, handshakeSize-1)},
		{name: "short ack", frameType: TypeAck, payload: make([]byte, ackSize-1)},
		{
			name:      "ack matched flag out of range",
			frameType: TypeAck,
			payload:   append(make([]byte, 16), 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(encode(tt.frameType, tt.payload))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestReadWriteFrameStream(t *testing.T) {
	c := NewCodec()

	frames := []Frame{
		&TransferHeader{Kind: KindFolder},
		&EntryHeader{Kind: EntryDir, Path: "sub"},
		&EntryHeader{Kind: EntryFile, Size: 5, Path: "sub/a.txt"},
		&Chunk{Data: []byte("hello")},
		&Handshake{Items: 2, Bytes: 5},
		&Ack{Items: 2, Bytes: 5, Matched: true},
	}

	buf := &bytes.Buffer{}
	for _, f := range frames {
		require.NoError(t, c.WriteFrame(buf, f))
	}

	for _, want := range frames {
		got, err := c.ReadFrame(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
