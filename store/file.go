package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/osash4/dujyo-ledger/ledger"
)

// FileStore persists the chain as one JSON document per line, in chain
// order. Load re-verifies every block: a stored hash that no longer matches
// its recomputed hash, or a broken link, fails the load.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the full chain atomically (temp file + rename).
func (s *FileStore) Save(blocks []*ledger.Block) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chain-*")
	if err != nil {
		return fmt.Errorf("creating temp chain file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i, b := range blocks {
		if err := enc.Encode(b); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding block %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing chain file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing chain file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the chain back and verifies hashes and linkage. A missing file
// yields an empty chain and no error.
func (s *FileStore) Load() ([]*ledger.Block, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening chain file: %w", err)
	}
	defer f.Close()

	var blocks []*ledger.Block
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var b ledger.Block
		if err := json.Unmarshal(line, &b); err != nil {
			return nil, fmt.Errorf("decoding block %d: %w", len(blocks), err)
		}
		blocks = append(blocks, &b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chain file: %w", err)
	}

	for i, b := range blocks {
		if got := b.ComputeHash(); got != b.Hash {
			return nil, fmt.Errorf("block %d: stored hash %s does not match recomputed %s", i, b.Hash, got)
		}
		if i > 0 && b.PreviousHash != blocks[i-1].Hash {
			return nil, fmt.Errorf("block %d: broken link to predecessor", i)
		}
	}
	return blocks, nil
}
