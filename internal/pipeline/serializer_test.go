package pipeline

import (
	"context"
	"sync"
	"testing"
)

func TestSerializerPerKeyOrdering(t *testing.T) {
	t.Parallel()

	s := newSerializer()
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		s.enqueue(context.Background(), "conv-1", func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	s.wait()

	if len(got) != 50 {
		t.Fatalf("ran %d jobs, want 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
}

func TestSerializerKeysRunIndependently(t *testing.T) {
	t.Parallel()

	s := newSerializer()
	release := make(chan struct{})
	secondDone := make(chan struct{})

	s.enqueue(context.Background(), "slow", func(context.Context) {
		<-release
	})
	s.enqueue(context.Background(), "fast", func(context.Context) {
		close(secondDone)
	})

	// The fast key must complete while the slow key is still blocked.
	<-secondDone
	close(release)
	s.wait()
}
