package services

import "sync"

// templateLocks serializes structural mutations per template. Two
// concurrent reorders on the same table must not both read the old order
// and write conflicting new ones; taking the template's lock around the
// whole validate-then-commit sequence rules that out.
type templateLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

var tplLocks = &templateLocks{locks: make(map[uint]*sync.Mutex)}

func (l *templateLocks) get(templateID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[templateID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[templateID] = m
	}
	return m
}

// lockTemplate takes the per-template mutex and returns the unlock func.
func lockTemplate(templateID uint) func() {
	m := tplLocks.get(templateID)
	m.Lock()
	return m.Unlock
}
