package pipeline

import (
	"context"
	"sync"
)

// serializer runs jobs strictly in enqueue order per key while allowing full
// parallelism across keys. Conversation state is not commutative, so two
// messages from the same (contact, channel) must never interleave.
type serializer struct {
	mu     sync.Mutex
	queues map[string][]func(context.Context)
	wg     sync.WaitGroup
}

func newSerializer() *serializer {
	return &serializer{
		queues: map[string][]func(context.Context){},
	}
}

// enqueue schedules job for the key. If no worker is draining the key's
// queue, one is started; it exits once the queue is empty.
func (s *serializer) enqueue(ctx context.Context, key string, job func(context.Context)) {
	s.mu.Lock()
	queue, running := s.queues[key]
	s.queues[key] = append(queue, job)
	if running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(ctx, key)
}

func (s *serializer) drain(ctx context.Context, key string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		queue := s.queues[key]
		if len(queue) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		job := queue[0]
		s.queues[key] = queue[1:]
		s.mu.Unlock()

		job(ctx)
	}
}

// wait blocks until all queued jobs have finished. Used on shutdown and in
// tests.
func (s *serializer) wait() {
	s.wg.Wait()
}
