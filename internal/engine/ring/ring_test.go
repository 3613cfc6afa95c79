package ring

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"discord-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(id string) Batch {
	return Batch{Type: "MESSAGE_CREATE", Events: []*models.ContentEvent{{MessageID: id}}}
}

func TestSizeRoundsUp(t *testing.T) {
	assert.Equal(t, 8, New(5).Cap())
	assert.Equal(t, DefaultSize, New(0).Cap())
}

func TestFIFO(t *testing.T) {
	r := New(4)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, r.Push(batch(id)))
	}
	assert.Equal(t, 3, r.Len())

	for _, id := range []string{"a", "b", "c"} {
		b, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, id, b.Events[0].MessageID)
	}
	assert.Zero(t, r.Len())
}

func TestPushFull(t *testing.T) {
	r := New(2)
	assert.True(t, r.Push(batch("a")))
	assert.True(t, r.Push(batch("b")))
	assert.False(t, r.Push(batch("c")), "full ring drops")

	_, ok := r.Pop()
	require.True(t, ok)
	assert.True(t, r.Push(batch("c")), "slot freed by pop")
}

func TestCloseDrains(t *testing.T) {
	r := New(4)
	r.Push(batch("a"))
	r.Close()

	assert.False(t, r.Push(batch("b")), "closed ring rejects")

	b, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", b.Events[0].MessageID)

	_, ok = r.Pop()
	assert.False(t, ok)
}

func TestCloseWakesConsumers(t *testing.T) {
	r := New(4)
	done := make(chan struct{})
	go func() {
		r.Pop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer not woken by close")
	}
}

func TestConsumersProcessEverything(t *testing.T) {
	r := New(1024)
	var handled atomic.Int64
	wg := StartConsumers(r, 4, func(b Batch) {
		handled.Add(int64(len(b.Events)))
	}, nil)

	var producers sync.WaitGroup
	for p := 0; p < 8; p++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := 0; i < 100; i++ {
				for !r.Push(batch("x")) {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	producers.Wait()
	r.Close()
	wg.Wait()

	assert.EqualValues(t, 800, handled.Load())
}

func TestConsumerSurvivesPanic(t *testing.T) {
	r := New(4)
	var handled atomic.Int64
	wg := StartConsumers(r, 1, func(b Batch) {
		if b.Events[0].MessageID == "boom" {
			panic("bad batch")
		}
		handled.Add(1)
	}, nil)

	r.Push(batch("boom"))
	r.Push(batch("ok"))
	r.Close()
	wg.Wait()

	assert.EqualValues(t, 1, handled.Load())
}
