package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_ExecutesTasks(t *testing.T) {
	p := NewWorkerPool(2, 8, nil)
	p.Start(context.Background())

	var count int64
	for i := 0; i < 5; i++ {
		ok := p.TrySubmit(func() { atomic.AddInt64(&count, 1) })
		assert.True(t, ok)
	}

	p.Stop()
	assert.Equal(t, int64(5), atomic.LoadInt64(&count))
}

func TestWorkerPool_TrySubmitFullQueue(t *testing.T) {
	// 不启动 worker，队列容量 1：第二次提交必须立即失败
	p := NewWorkerPool(1, 1, nil)

	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, nil)
	p.Start(context.Background())

	done := make(chan struct{})
	assert.True(t, p.TrySubmit(func() { panic("boom") }))
	assert.True(t, p.TrySubmit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped processing after panic")
	}

	p.Stop()
}
