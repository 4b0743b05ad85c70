package testutil

import (
	"context"
	"sync"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// MemorySink is an upsert sink kept in memory.
type MemorySink[R harvest.Record] struct {
	mu         sync.Mutex
	Rows       map[string]R
	Marks      map[string]harvest.Watermark
	Batches    [][]R
	WriteErr   error
	Journaled  []*harvest.Run
	writeCalls int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink[R harvest.Record]() *MemorySink[R] {
	return &MemorySink[R]{
		Rows:  make(map[string]R),
		Marks: make(map[string]harvest.Watermark),
	}
}

func (s *MemorySink[R]) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Marks[key], nil
}

func (s *MemorySink[R]) AdvanceWatermark(ctx context.Context, key string, mark harvest.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mark > s.Marks[key] {
		s.Marks[key] = mark
	}
	return nil
}

func (s *MemorySink[R]) Write(ctx context.Context, key string, batch []R, mark harvest.Watermark) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	for _, r := range batch {
		s.Rows[r.RecordID()] = r
	}
	s.Batches = append(s.Batches, batch)
	if mark > s.Marks[key] {
		s.Marks[key] = mark
	}
	return len(batch), nil
}

func (s *MemorySink[R]) RecordRun(ctx context.Context, run *harvest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Journaled = append(s.Journaled, run)
	return nil
}

// WriteCalls reports how many times Write was called.
func (s *MemorySink[R]) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}
