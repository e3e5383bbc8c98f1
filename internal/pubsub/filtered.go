package pubsub

// NewFilteredSender wraps s so that only messages accepted by f are passed on. Rejected messages still count as
// delivered, so a publisher won't drop the subscriber over them.
func NewFilteredSender[T any](s SenderCloser[T], f func(T) bool) SenderCloser[T] {
	return &filteredSender[T]{SenderCloser: s, filter: f}
}

type filteredSender[T any] struct {
	SenderCloser[T]
	filter func(T) bool
}

func (s *filteredSender[T]) Send(msg T) bool {
	select {
	case <-s.Closed():
		return false
	default:
	}
	if s.filter == nil || s.filter(msg) {
		return s.SenderCloser.Send(msg)
	}
	return true
}
