package cache

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/skyline93/bundlecache/internal/fs"
)

// RecordStore maps bundle GUIDs to records. It is the only source for the
// answer to "is this bundle cached".
type RecordStore struct {
	fs fs.FS

	mu      sync.RWMutex
	records map[string]Record
}

// NewRecordStore returns an empty store deleting folders on fsys.
func NewRecordStore(fsys fs.FS) *RecordStore {
	return &RecordStore{
		fs:      fsys,
		records: make(map[string]Record),
	}
}

// Exists returns true if guid has a record.
func (s *RecordStore) Exists(guid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[guid]
	return ok
}

// Get returns the record of guid.
func (s *RecordStore) Get(guid string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[guid]
	return r, ok
}

// Insert adds the record of guid. An existing record is never overwritten.
func (s *RecordStore) Insert(guid string, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[guid]; ok {
		return errors.Wrapf(ErrAlreadyCached, "record %v", guid)
	}
	s.records[guid] = r
	return nil
}

// Remove drops the record of guid and deletes its folder. It reports whether
// a record was present.
func (s *RecordStore) Remove(guid string) (bool, error) {
	s.mu.Lock()
	r, ok := s.records[guid]
	delete(s.records, guid)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, r.deleteFolder(s.fs)
}

// Keys returns a snapshot of the recorded GUIDs in no particular order.
func (s *RecordStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// reset forgets every record without touching any file.
func (s *RecordStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
}
