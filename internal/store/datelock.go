package store

import "sync"

// dateLocks serializes writers per calendar date. Submissions for different
// dates proceed independently.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*dateLock
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

func (d *dateLocks) lock(fecha string) func() {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*dateLock)
	}
	l, ok := d.locks[fecha]
	if !ok {
		l = &dateLock{}
		d.locks[fecha] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, fecha)
		}
		d.mu.Unlock()
	}
}
