package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/internal/pubsub"
)

// Backend is the remote extraction service, see backend.Client.
type Backend interface {
	GetVideoInfo(ctx context.Context, query string) (*video_grabber.VideoInfo, error)
	RequestDownload(ctx context.Context, query string, itag video_grabber.Identifier) (string, error)
}

// Navigator follows a download link, the way a browser navigates to it.
type Navigator interface {
	Navigate(ctx context.Context, link string) error
}

type NavigatorFunc func(ctx context.Context, link string) error

func (f NavigatorFunc) Navigate(ctx context.Context, link string) error {
	return f(ctx, link)
}

type Config struct {
	Backend   Backend
	Navigator Navigator
	// Upper bound on each backend request, 0 for none.
	RequestTimeout time.Duration
}

var DefaultConfig = Config{
	RequestTimeout: video_grabber.DefaultConfig.RequestTimeout,
}

// Session holds the state of one user session. All reads and writes of that state happen on a single goroutine,
// which serves commands sent by the exported methods; network calls run on the caller's goroutine between a begin
// and a finish command, with Busy held in between.
type Session struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	state    State
	events   pubsub.Publisher[Event]
	commands chan any
	done     chan struct{}
}

func New(ctx context.Context, config Config) (*Session, error) {
	if config.Backend == nil {
		return nil, errMissing("Backend")
	}
	if config.Navigator == nil {
		return nil, errMissing("Navigator")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("session"),

		events:   pubsub.NewPublisher[Event](),
		commands: make(chan any),
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Subscribe returns a receiver for all future events. It must be drained or closed, otherwise the session stalls
// once the event buffers fill up.
func (s *Session) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeFiltered is like Subscribe, for only the events accepted by f.
func (s *Session) SubscribeFiltered(f func(Event) bool) (pubsub.ReceiverCloser[Event], error) {
	return s.events.SubscribeFiltered(f)
}

// Close stops the session. Operations in flight fail with video_grabber.ErrSessionClosed, and subscribers are
// closed once pending events are delivered.
func (s *Session) Close() {
	s.ctxCancel()
	<-s.done
	s.events.Close()
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func errMissing(field string) error {
	return fmt.Errorf("session config: %s is required", field)
}

// requestContext bounds ctx by timeout (if non-zero) and by the session's own lifetime.
func (s *Session) requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
