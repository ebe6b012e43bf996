package hashing

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// leafStore is the backing store for v2 leaf digests: sequential appends
// while the stream is hashed, then exactly one ordered read-back at finalize
// time. Spilling the digests keeps peak memory independent of the input size.
type leafStore interface {
	append(digest [32]byte) error
	// readBack returns all stored digests in append order. The store is
	// spent afterwards.
	readBack(count int) ([][32]byte, error)
	close() error
}

// fileLeafStore spills digests to an unlinked temporary file.
type fileLeafStore struct {
	file   *os.File
	writer *bufio.Writer
}

func newFileLeafStore() (*fileLeafStore, error) {
	file, err := os.CreateTemp("", "torseed-leaves-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create leaf spill file: %w", err)
	}
	// Unlink right away so the file is reclaimed even on a crash.
	os.Remove(file.Name())
	return &fileLeafStore{file: file, writer: bufio.NewWriter(file)}, nil
}

func (s *fileLeafStore) append(digest [32]byte) error {
	if _, err := s.writer.Write(digest[:]); err != nil {
		return fmt.Errorf("failed to write leaf digest: %w", err)
	}
	return nil
}

func (s *fileLeafStore) readBack(count int) ([][32]byte, error) {
	if err := s.writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush leaf digests: %w", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind leaf spill file: %w", err)
	}
	reader := bufio.NewReader(s.file)
	leaves := make([][32]byte, count)
	for i := range leaves {
		if _, err := io.ReadFull(reader, leaves[i][:]); err != nil {
			return nil, fmt.Errorf("failed to read back leaf digest %d: %w", i, err)
		}
	}
	return leaves, nil
}

func (s *fileLeafStore) close() error {
	return s.file.Close()
}

// memoryLeafStore keeps digests in a plain slice. Suitable when the input is
// known to be small; also used by tests.
type memoryLeafStore struct {
	leaves [][32]byte
}

func (s *memoryLeafStore) append(digest [32]byte) error {
	s.leaves = append(s.leaves, digest)
	return nil
}

func (s *memoryLeafStore) readBack(count int) ([][32]byte, error) {
	if count != len(s.leaves) {
		return nil, fmt.Errorf("leaf count mismatch: have %d, want %d", len(s.leaves), count)
	}
	return s.leaves, nil
}

func (s *memoryLeafStore) close() error { return nil }
