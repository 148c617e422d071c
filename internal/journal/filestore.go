package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/sqlsyncerr"
)

// FileStore is a filesystem-backed EntryStore: one file per entry, matching
// spec §6's "a filesystem store" persistence backend. The directory holds
// nothing else; entry filenames are the zero-padded hex LSN so a directory
// listing sorts in LSN order.
type FileStore struct {
	dir   string
	first lsn.LSN
	end   lsn.LSN
}

// OpenFileStore opens (or creates) a directory-backed entry store, scanning
// any existing entries to recover its current range.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	fs := &FileStore{dir: dir}
	if err := fs.recoverRange(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) recoverRange() error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return fmt.Errorf("scan file store: %w", err)
	}
	var lsns []lsn.LSN
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, err := strconv.ParseUint(e.Name(), 16, 64)
		if err != nil {
			continue
		}
		lsns = append(lsns, v)
	}
	if len(lsns) == 0 {
		return nil
	}
	sort.Slice(lsns, func(i, j int) bool { return lsns[i] < lsns[j] })
	fs.first = lsns[0]
	fs.end = lsns[len(lsns)-1] + 1
	return nil
}

func (fs *FileStore) path(l lsn.LSN) string {
	return filepath.Join(fs.dir, fmt.Sprintf("%016x", l))
}

func (fs *FileStore) Range() lsn.Range {
	if fs.end <= fs.first {
		// Drained (or never written): the range is empty either way, but its
		// position must stay at the store's actual tail so Journal.Append's
		// next := store.Range().End never reuses an LSN already consumed.
		return lsn.Range{First: fs.end, End: fs.end}
	}
	return lsn.Range{First: fs.first, End: fs.end}
}

func (fs *FileStore) WriteEntry(l lsn.LSN, data []byte) error {
	if l == lsn.Max {
		return fmt.Errorf("write entry at lsn %d: %w", l, ErrLsnExhausted)
	}
	tmp := fs.path(l) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write entry at lsn %d: %w: %w", l, sqlsyncerr.ErrIOError, err)
	}
	if err := os.Rename(tmp, fs.path(l)); err != nil {
		return fmt.Errorf("write entry at lsn %d: %w: %w", l, sqlsyncerr.ErrIOError, err)
	}
	if fs.end == fs.first && fs.first == 0 {
		fs.first = l
	}
	if l+1 > fs.end {
		fs.end = l + 1
	}
	if l < fs.first {
		fs.first = l
	}
	return nil
}

func (fs *FileStore) ReadEntry(l lsn.LSN) (EntryHandle, error) {
	if !fs.Range().Contains(l) {
		return nil, fmt.Errorf("read entry at lsn %d: %w", l, ErrLsnNotFound)
	}
	data, err := os.ReadFile(fs.path(l))
	if err != nil {
		return nil, fmt.Errorf("read entry at lsn %d: %w", l, ErrLsnNotFound)
	}
	return memHandle(data), nil
}

func (fs *FileStore) DropPrefix(upToInclusive lsn.LSN) error {
	r := fs.Range()
	if r.IsEmpty() {
		return nil
	}
	newFirst := upToInclusive + 1
	if newFirst <= fs.first {
		return nil
	}
	if newFirst > fs.end {
		newFirst = fs.end
	}
	for l := fs.first; l < newFirst; l++ {
		if err := os.Remove(fs.path(l)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("drop prefix at lsn %d: %w: %w", l, sqlsyncerr.ErrIOError, err)
		}
	}
	fs.first = newFirst
	return nil
}
