package lifecycle

import "sync"

// keyedMutex grants one mutex per ASN, so a state transition on one
// ASN never blocks on a concurrent transition for another while still
// serializing every read-then-write on a single ASN.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint32]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint32]*sync.Mutex)}
}

func (k *keyedMutex) lockFor(asn uint32) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[asn]
	if !ok {
		m = &sync.Mutex{}
		k.locks[asn] = m
	}
	return m
}

// Lock acquires the mutex for asn and returns a function that releases
// it, for use as `defer km.Lock(asn)()`.
func (k *keyedMutex) Lock(asn uint32) func() {
	m := k.lockFor(asn)
	m.Lock()
	return m.Unlock
}
