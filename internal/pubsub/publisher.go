package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/video-grabber/generic"
	"github.com/alanbriolat/video-grabber/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 16
	DefaultSubscriberBufSize = 16
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher fans every sent message out to all current subscribers, in send order.
type Publisher[T any] interface {
	Sender[T]
	Closer
	AddSubscriber(s SenderCloser[T]) error
	Subscribe() (ReceiverCloser[T], error)
	// SubscribeFiltered is like Subscribe, but only messages accepted by f are delivered.
	SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error)
}

type publisher[T any] struct {
	mu          sync.Mutex
	closed      bool
	ch          Channel[T]
	running     sync.WaitGroup
	pending     sync.WaitGroup
	subscribers *sync_.Mutexed[generic.Set[SenderCloser[T]]]
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(generic.NewPolymorphicSet[SenderCloser[T]]()),
	}
	p.running.Add(1)
	go p.run()
	return p
}

func (p *publisher[T]) run() {
	defer p.running.Done()
	for msg := range p.ch.Receive() {
		// Snapshot so a slow subscriber doesn't block AddSubscriber
		var subscribers []SenderCloser[T]
		_ = p.subscribers.Locked(func(s generic.Set[SenderCloser[T]]) error {
			subscribers = s.ToSlice()
			return nil
		})
		for _, s := range subscribers {
			if !s.Send(msg) {
				p.unsubscribe(s)
			}
		}
		p.pending.Done()
	}
}

// Send queues msg for delivery to all subscribers. It only blocks if the publisher's own buffer is full.
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if !p.ch.Send(msg) {
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	c := NewChannel[T](DefaultSubscriberBufSize)
	if err := p.AddSubscriber(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *publisher[T]) SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error) {
	c := NewChannel[T](DefaultSubscriberBufSize)
	if err := p.AddSubscriber(NewFilteredSender[T](c, f)); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	p.subscribers.Update(func(set *generic.Set[SenderCloser[T]]) {
		(*set).Add(s)
	})
	return nil
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	p.subscribers.Update(func(set *generic.Set[SenderCloser[T]]) {
		(*set).Remove(s)
	})
}

// Close idempotently flushes queued messages, then closes every subscriber. Subscribers must keep receiving (or
// be closed themselves) for the flush to finish.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	var subscribers []SenderCloser[T]
	p.subscribers.Update(func(set *generic.Set[SenderCloser[T]]) {
		subscribers = (*set).ToSlice()
		(*set).Clear()
	})
	for _, s := range subscribers {
		s.Close()
	}
	p.closed = true
}
