// ABOUTME: Per-conversation job queue preserving arrival order
// ABOUTME: Transports hand inbound events here so the read loop never blocks

package adapter

import "sync"

// ConversationKey identifies a conversation across channels. Turns sharing a
// key never overlap.
func ConversationKey(channelID, conversationID string) string {
	return channelID + "/" + conversationID
}

// serialQueue runs jobs one at a time per key, in the order they were
// submitted. Each key with pending work has exactly one worker goroutine.
type serialQueue struct {
	mu     sync.Mutex
	queues map[string][]func() // present while a worker owns the key
	wg     sync.WaitGroup
}

func newSerialQueue() *serialQueue {
	return &serialQueue{queues: make(map[string][]func())}
}

// Submit appends job to key's queue and starts a worker if none is running.
func (q *serialQueue) Submit(key string, job func()) {
	q.mu.Lock()
	pending, running := q.queues[key]
	q.queues[key] = append(pending, job)
	if !running {
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if !running {
		go q.drain(key)
	}
}

func (q *serialQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.queues[key]
		if len(jobs) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		jobs[0] = nil
		q.queues[key] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// Wait blocks until every submitted job has finished.
func (q *serialQueue) Wait() {
	q.wg.Wait()
}

// pending reports how many keys have a running worker.
func (q *serialQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
