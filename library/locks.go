package library

import (
	"slices"
	"sync"
)

// lockSet serializes operations per item, member, catalog entry and
// (member, entry) pair. Ordinary operations hold the gate shared; a
// reconciliation pass holds it exclusively so it never interleaves with a
// mutation.
type lockSet struct {
	gate sync.RWMutex

	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{keys: make(map[string]*keyLock)}
}

func itemKey(barcode string) string   { return "item:" + barcode }
func memberKey(card string) string    { return "member:" + card }
func entryKey(ean string) string      { return "entry:" + ean }
func pairKey(card, ean string) string { return "pair:" + card + "/" + ean }

// acquire locks every key in sorted order, so two operations sharing keys can
// never deadlock, and returns the matching release.
func (l *lockSet) acquire(keys ...string) (release func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	l.gate.RLock()
	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		kl := l.ref(k)
		kl.mu.Lock()
		held = append(held, kl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.unref(keys[i])
		}
		l.gate.RUnlock()
	}
}

// exclusive waits for every in-flight operation and blocks new ones.
func (l *lockSet) exclusive() (release func()) {
	l.gate.Lock()
	return l.gate.Unlock
}

func (l *lockSet) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{}
		l.keys[key] = kl
	}
	kl.refs++
	return kl
}

func (l *lockSet) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.keys[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}
