package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orbitinghail/sqlsync/internal/appreducers"
	"github.com/orbitinghail/sqlsync/internal/document"
	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// metaFile names the JSON file recording a working directory's document
// and timeline identities across CLI invocations (one persistent identity,
// many one-shot processes).
const metaFile = "meta.json"

type workdirMeta struct {
	DocumentID string `json:"document_id"`
	TimelineID string `json:"timeline_id"`
}

// initWorkdir creates a fresh document working directory at dir: the
// storage-journal mirror and timeline journal directories, and the meta
// file recording the generated IDs. The sqlite file is not created here. Returns an error if dir already holds one.
func initWorkdir(dir string) (workdirMeta, error) {
	if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
		return workdirMeta{}, fmt.Errorf("open: %s is already a sqlsync document", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return workdirMeta{}, fmt.Errorf("open: %w", err)
	}
	for _, sub := range []string{"storage", "timeline"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return workdirMeta{}, fmt.Errorf("open: %w", err)
		}
	}

	meta := workdirMeta{
		DocumentID: journal.NewID().String(),
		TimelineID: journal.NewID().String(),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return workdirMeta{}, fmt.Errorf("open: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), b, 0o644); err != nil {
		return workdirMeta{}, fmt.Errorf("open: %w", err)
	}
	return meta, nil
}

func loadWorkdirMeta(dir string) (workdirMeta, error) {
	b, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return workdirMeta{}, fmt.Errorf("%s is not a sqlsync document (run 'sqlsync open' first): %w", dir, err)
	}
	var meta workdirMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return workdirMeta{}, fmt.Errorf("read %s: %w", metaFile, err)
	}
	return meta, nil
}

// openClientDocument wires a ClientDocument over dir's on-disk state, using
// link as its (possibly never-connecting) coordinator link.
func openClientDocument(dir string, link *syncproto.Link) (*document.ClientDocument, *sqlengine.Engine, error) {
	meta, err := loadWorkdirMeta(dir)
	if err != nil {
		return nil, nil, err
	}
	docID, err := journal.ParseID(meta.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	timelineID, err := journal.ParseID(meta.TimelineID)
	if err != nil {
		return nil, nil, err
	}

	engine, err := sqlengine.Open(filepath.Join(dir, "data.db"))
	if err != nil {
		return nil, nil, err
	}

	storageStore, err := journal.OpenFileStore(filepath.Join(dir, "storage"))
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	timelineStore, err := journal.OpenFileStore(filepath.Join(dir, "timeline"))
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	doc := document.NewClientDocument(
		docID, engine, appreducers.Builtin(), 0,
		journal.New(docID, storageStore),
		journal.New(timelineID, timelineStore),
		link,
	)
	return doc, engine, nil
}
