package server

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// StoredMatrix is a matrix kept on the server between requests.
type StoredMatrix struct {
	matrix   *mat.Dense
	modified time.Time
	mutex    sync.Mutex
}

func NewStoredMatrix(m *mat.Dense) *StoredMatrix {
	return &StoredMatrix{matrix: m, modified: time.Now()}
}

// LockAndRun calls f with the stored matrix held locked.
func (sm *StoredMatrix) LockAndRun(
	f func(m *mat.Dense, modified time.Time) error,
) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	return f(sm.matrix, sm.modified)
}

// NamedMatrices maps names to stored matrices.
type NamedMatrices struct {
	SyncMap[string, *StoredMatrix]
}

// Set stores m under id, replacing any previous matrix.
// It takes ownership of m; caller must not use m anymore.
func (nm *NamedMatrices) Set(id string, m *mat.Dense) (created bool) {
	_, loaded := nm.Swap(id, NewStoredMatrix(m))
	return !loaded
}

// Copy returns a copy of the matrix stored under id
// and the time it was stored.
func (nm *NamedMatrices) Copy(id string) (
	m *mat.Dense, modified time.Time, ok bool,
) {
	sm, ok := nm.Load(id)
	if !ok {
		return nil, time.Time{}, false
	}
	_ = sm.LockAndRun(func(stored *mat.Dense, t time.Time) error {
		m, modified = mat.DenseCopyOf(stored), t
		return nil
	})
	return m, modified, true
}

// Modified returns the time the matrix under id was stored.
func (nm *NamedMatrices) Modified(id string) (modified time.Time, ok bool) {
	sm, ok := nm.Load(id)
	if !ok {
		return time.Time{}, false
	}
	_ = sm.LockAndRun(func(_ *mat.Dense, t time.Time) error {
		modified = t
		return nil
	})
	return modified, true
}

func (nm *NamedMatrices) Delete(id string) (deleted bool) {
	_, deleted = nm.LoadAndDelete(id)
	return
}
