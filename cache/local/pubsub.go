package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch chan *LocalMessage
}

// LocalPubSub is an in-process fan-out pub/sub implementation. It carries
// quest notification events between the engine and SSE streams when no
// Redis is configured.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	bufSize     int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
// A subscriber with a full buffer misses the message rather than blocking
// the publisher.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for s := range ps.subscribers[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels, and a
// cancel function that unsubscribes and closes the channel.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.bufSize)
	sub := &subscriber{ch: ch}

	ps.mu.Lock()
	for _, c := range channels {
		set, ok := ps.subscribers[c]
		if !ok {
			set = make(map[*subscriber]struct{})
			ps.subscribers[c] = set
		}
		set[sub] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				delete(ps.subscribers[c], sub)
				if len(ps.subscribers[c]) == 0 {
					delete(ps.subscribers, c)
				}
			}
			close(ch)
		})
	}

	return ch, cancel, nil
}
