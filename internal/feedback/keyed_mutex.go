package feedback

import (
	"sync"

	"reitloop/internal/types"
)

// keyedMutex 为每个模型类型分配一把互斥锁。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[types.ModelType]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[types.ModelType]*sync.Mutex)}
}

func (k *keyedMutex) get(key types.ModelType) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

func (k *keyedMutex) Lock(key types.ModelType) { k.get(key).Lock() }

func (k *keyedMutex) TryLock(key types.ModelType) bool { return k.get(key).TryLock() }

func (k *keyedMutex) Unlock(key types.ModelType) { k.get(key).Unlock() }
