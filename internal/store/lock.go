package store

import "sync"

// Locker hands out one mutex per symbol so a load-then-overwrite sequence for
// a symbol cannot interleave with another caller's.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*symbolLock
}

type symbolLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*symbolLock)}
}

// Lock blocks until symbol is free and returns the matching unlock function.
func (l *Locker) Lock(symbol string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[symbol]
	if !ok {
		sl = &symbolLock{}
		l.locks[symbol] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, symbol)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of symbols currently locked or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
