package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
)

func TestPool_BoundedAndIndexed(t *testing.T) {
	pool := NewPool(3, zap.NewNop())
	var running, peak int32
	out := make([]int, 10)

	pool.Run(context.Background(), len(out), func(_ context.Context, i int) {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(time.Duration(10-i) * time.Millisecond)
		out[i] = i * i
		atomic.AddInt32(&running, -1)
	})

	if peak > 3 {
		t.Fatalf("peak concurrency=%d, want <=3", peak)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d]=%d", i, v)
		}
	}
}

func TestPool_PanicIsolated(t *testing.T) {
	pool := NewPool(2, zap.NewNop())
	var mu sync.Mutex
	done := map[int]bool{}
	pool.Run(context.Background(), 3, func(_ context.Context, i int) {
		if i == 1 {
			panic("boom")
		}
		mu.Lock()
		done[i] = true
		mu.Unlock()
	})
	if !done[0] || !done[2] {
		t.Fatalf("siblings of a panicking item must finish: %v", done)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	pool := NewPool(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	pool.Run(ctx, 5, func(context.Context, int) { atomic.AddInt32(&calls, 1) })
	if calls != 0 {
		t.Fatalf("calls=%d, want 0", calls)
	}
}

func TestNoopPublisherAndChannel(t *testing.T) {
	if err := (NoopPublisher{}).Publish(context.Background(), &models.ProgressMessage{BatchID: "b"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if Channel("abc") != "progress:abc" {
		t.Fatalf("Channel=%q", Channel("abc"))
	}
}
