package ring

import (
	"sync"

	"discord-automod/internal/engine/performance"

	"go.uber.org/zap"
)

// Consumer is a worker that hands batches from the ring to a handler
type Consumer struct {
	Ring    *Buffer
	Handler func(Batch)
	ID      int
	Logger  *zap.Logger
}

func NewConsumer(ring *Buffer, handler func(Batch), id int, logger *zap.Logger) *Consumer {
	return &Consumer{
		Ring:    ring,
		Handler: handler,
		ID:      id,
		Logger:  logger,
	}
}

// Start runs until the ring is closed and drained
func (c *Consumer) Start() {
	for {
		b, ok := c.Ring.Pop()
		if !ok {
			return
		}
		performance.SetIngestDepth(c.Ring.Len())
		c.handle(b)
	}
}

// handle isolates a panicking handler so one bad batch never kills the worker
func (c *Consumer) handle(b Batch) {
	defer func() {
		if r := recover(); r != nil {
			performance.RecordDropped("panic")
			if c.Logger != nil {
				c.Logger.Error("Batch handler panicked",
					zap.Int("worker", c.ID),
					zap.String("type", b.Type),
					zap.Any("panic", r))
			}
		}
	}()
	c.Handler(b)
}

// StartConsumers starts n consumers on the ring. The returned WaitGroup is
// done once the ring has been closed and every consumer has drained.
func StartConsumers(ring *Buffer, n int, handler func(Batch), logger *zap.Logger) *sync.WaitGroup {
	if n <= 0 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c := NewConsumer(ring, handler, i, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start()
		}()
	}
	return &wg
}
