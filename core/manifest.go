package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ManifestEntry is one file or directory under the transfer root. Path is
// slash-separated and relative to the root; Size is snapshotted at
// enumeration time and authoritative for the whole transfer.
type ManifestEntry struct {
	Path  string
	Kind  EntryKind
	Size  int64
	Index int
}

// Manifest is the ordered entry list for a folder transfer. The order is
// depth-first and lexical (filepath.WalkDir), so a parent directory always
// precedes anything nested under it. The root itself is not an entry;
// Items counts files and directories strictly below it.
type Manifest struct {
	Root    string
	Entries []ManifestEntry
	Items   uint64
	Bytes   uint64
}

// Enumerate walks root once, up front, and snapshots the manifest. Symbolic
// links are skipped entirely: WalkDir never descends through them, which
// bounds the traversal even when links form cycles.
func Enumerate(root string) (*Manifest, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	m := &Manifest{Root: root}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		entry := ManifestEntry{
			Path:  filepath.ToSlash(rel),
			Index: len(m.Entries),
		}

		if d.IsDir() {
			entry.Kind = EntryDir
		} else {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			entry.Kind = EntryFile
			entry.Size = fi.Size()
			m.Bytes += uint64(fi.Size())
		}

		m.Entries = append(m.Entries, entry)
		m.Items++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// TransferRequest is what the sending UI hands to the engine: a root path,
// its kind, and the declared totals. Immutable once built; the declared
// numbers are never revised mid-transfer.
type TransferRequest struct {
	Kind  TransferKind
	Root  string
	Items uint64
	Bytes uint64

	manifest *Manifest
	name     string
	size     int64
}

// NewTransferRequest stats root and, for a directory, enumerates it so the
// declared totals are fixed before the first frame is written.
func NewTransferRequest(root string) (*TransferRequest, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return &TransferRequest{
			Kind:  KindFile,
			Root:  root,
			Items: 1,
			Bytes: uint64(info.Size()),
			name:  info.Name(),
			size:  info.Size(),
		}, nil
	}

	m, err := Enumerate(root)
	if err != nil {
		return nil, err
	}

	return &TransferRequest{
		Kind:     KindFolder,
		Root:     root,
		Items:    m.Items,
		Bytes:    m.Bytes,
		manifest: m,
	}, nil
}

// Manifest returns the snapshotted manifest, nil for file-mode requests.
func (r *TransferRequest) Manifest() *Manifest {
	return r.manifest
}
