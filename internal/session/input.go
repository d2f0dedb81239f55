package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

const inputShards = 16

type inputShard struct {
	mu      sync.Mutex
	waiting map[string]chan string
}

// InputBroker hands user input to scripts blocked on it. The waiting
// set is sharded by session ID so unrelated sessions never contend on
// one lock.
type InputBroker struct {
	shards [inputShards]inputShard
}

// NewInputBroker creates an empty broker.
func NewInputBroker() *InputBroker {
	b := &InputBroker{}
	for i := range b.shards {
		b.shards[i].waiting = make(map[string]chan string)
	}
	return b
}

func (b *InputBroker) shard(sessionID string) *inputShard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &b.shards[h.Sum32()%inputShards]
}

// Wait blocks until input arrives for the session or ctx is done. Only
// one waiter per session is allowed.
func (b *InputBroker) Wait(ctx context.Context, sessionID string) (string, error) {
	sh := b.shard(sessionID)
	sh.mu.Lock()
	if _, exists := sh.waiting[sessionID]; exists {
		sh.mu.Unlock()
		return "", fmt.Errorf("session %s already waiting for input", sessionID)
	}
	ch := make(chan string, 1)
	sh.waiting[sessionID] = ch
	sh.mu.Unlock()

	defer func() {
		sh.mu.Lock()
		delete(sh.waiting, sessionID)
		sh.mu.Unlock()
	}()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Provide delivers input to a waiting session. Returns false when
// nothing is waiting on it.
func (b *InputBroker) Provide(sessionID, input string) bool {
	sh := b.shard(sessionID)
	sh.mu.Lock()
	ch, ok := sh.waiting[sessionID]
	if ok {
		delete(sh.waiting, sessionID)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	ch <- input
	return true
}

// Waiting reports whether the session has a blocked waiter.
func (b *InputBroker) Waiting(sessionID string) bool {
	sh := b.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.waiting[sessionID]
	return ok
}
