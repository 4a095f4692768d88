package daydir

import "sync"

// LockTable serializes everyone who mutates a camera's day directory:
// the scheduler writing frames, the encoders listing them, the archive
// pruning them, and budget enforcement deleting the whole directory.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

// Lock returns the mutex for one camera+day pair, creating it on first
// use. Locks are never removed; the table stays small because there are
// few cameras and days age out of active use.
func (t *LockTable) Lock(camera, day string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := camera + "/" + day
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}
