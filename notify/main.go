package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const multiplexerTimeout = 200 * time.Millisecond

// queueSize is how many values can be sent before Send blocks.
const queueSize = 64

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// MultiplexerSender sends values to all subscribers of a Multiplexer, in the order they were sent.
type MultiplexerSender[E any] struct {
	m     *Multiplexer[E]
	queue chan E
}

// Send queues e for delivery without waiting for subscribers.
func (ms *MultiplexerSender[E]) Send(e E) {
	ms.queue <- e
}

// Close stops delivery after all queued values are sent.
func (ms *MultiplexerSender[E]) Close() {
	close(ms.queue)
}

func NewMultiplexerSender[E any](comment string) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		comment: comment,
	}
	ms := &MultiplexerSender[E]{m: m, queue: make(chan E, queueSize)}
	go func() {
		for e := range ms.queue {
			m.send(e)
		}
	}()
	return ms, m
}

// Multiplexer fans out values to subscribers.
// A subscriber that doesn't receive within multiplexerTimeout misses that value.
type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
}

func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, subscriber[E]{
		ch:      c,
		comment: comment,
	})
}

func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

func (m *Multiplexer[E]) send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- e:
		case <-time.After(multiplexerTimeout):
			m.timeout(sub, e)
		}
	}
}

func (m *Multiplexer[E]) timeout(sub subscriber[E], e E) {
	zap.S().Warnw("multiplexer: subscriber timed out",
		"multiplexer", m.comment,
		"subscriber", sub.comment,
		"value", e)
}
