package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/generic"
)

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.log.Debug("session stopped")
			return
		case c := <-s.commands:
			s.handle(c)
		}
	}
}

func (s *Session) handle(c any) {
	switch c := c.(type) {
	case stateCommand:
		_ = c.Respond(s.state.clone())
	case setQueryCommand:
		s.setQuery(c.Arg())
		_ = c.Respond(s.state.clone())
	case validateCommand:
		if err := s.validate(); err != nil {
			_ = c.RespondError(err)
		} else {
			_ = c.Respond(generic.NewVoid())
		}
	case beginCommand:
		if op, err := s.begin(c.Arg()); err != nil {
			_ = c.RespondError(err)
		} else {
			_ = c.Respond(op)
		}
	case finishCommand:
		s.finish(c.Arg())
		_ = c.Respond(s.state.clone())
	default:
		panic(fmt.Sprintf("session: unhandled command %T", c))
	}
}

func (s *Session) snapshot() sessionEvent {
	return sessionEvent{state: s.state.clone()}
}

func (s *Session) setQuery(query string) {
	if query == s.state.Query {
		return
	}
	s.state.Query = query
	s.events.Send(QueryChanged{s.snapshot()})
}

func (s *Session) validate() error {
	err := video_grabber.ValidateQuery(s.state.Query)
	s.state.InputInvalid = err != nil
	if err != nil {
		s.log.Debugw("query rejected", "query", s.state.Query, "error", err)
		s.events.Send(QueryRejected{sessionEvent: s.snapshot(), Err: err})
	}
	return err
}

// begin takes the busy flag for op. A fetch is validated first, and a busy session rejects everything.
func (s *Session) begin(op operation) (operation, error) {
	if s.state.Busy {
		return operation{}, video_grabber.ErrBusy
	}
	if op.Kind == OperationFetch {
		if err := s.validate(); err != nil {
			return operation{}, err
		}
	}
	op.ID = NewOperationID()
	op.Query = s.state.Query
	s.state.Busy = true
	s.log.Infow("operation started", "operation", op.ID, "kind", op.Kind, "query", op.Query)
	s.events.Send(BusyChanged{sessionEvent: s.snapshot(), Operation: op.ID, Kind: op.Kind, Busy: true})
	return op, nil
}

// finish applies the outcome of an operation and always releases the busy flag.
func (s *Session) finish(o outcome) {
	id := o.op.ID
	switch o.op.Kind {
	case OperationFetch:
		if o.err == nil && o.info == nil {
			o.err = errors.New("backend returned no video info")
		}
		if o.err != nil {
			s.log.Errorw("failed to fetch video info", "operation", id, "error", o.err)
			s.events.Send(FetchFailed{sessionEvent: s.snapshot(), Operation: id, Err: o.err})
			break
		}
		old := s.state.Metadata
		metadata := video_grabber.NewVideoMetadata(*o.info)
		s.state.Metadata = generic.Some(metadata)
		s.log.Infow("video info fetched", "operation", id, "title", metadata.Title,
			"formats", len(metadata.Formats), "duplicates_dropped", len(o.info.Formats)-len(metadata.Formats))
		s.logMetadataChanges(id, old, metadata)
		s.events.Send(MetadataFetched{sessionEvent: s.snapshot(), Operation: id, Old: old, New: metadata.Clone()})
	case OperationDownload:
		if o.err != nil {
			s.log.Errorw("failed to start download", "operation", id, "itag", o.op.Itag.String(), "error", o.err)
			s.events.Send(DownloadFailed{sessionEvent: s.snapshot(), Operation: id, Itag: o.op.Itag, Err: o.err})
			break
		}
		s.log.Infow("download dispatched", "operation", id, "itag", o.op.Itag.String(), "link", o.link)
		s.events.Send(DownloadDispatched{sessionEvent: s.snapshot(), Operation: id, Itag: o.op.Itag, Link: o.link})
	}
	s.state.Busy = false
	s.events.Send(BusyChanged{sessionEvent: s.snapshot(), Operation: id, Kind: o.op.Kind, Busy: false})
}

func (s *Session) logMetadataChanges(id OperationID, old generic.Option[video_grabber.VideoMetadata], current video_grabber.VideoMetadata) {
	if !s.log.Desugar().Core().Enabled(zap.DebugLevel) {
		return
	}
	changes, err := diff.Diff(old.UnwrapOrDefault(), current)
	if err != nil {
		s.log.Warnw("failed to diff old and new metadata", "operation", id, "error", err)
		return
	}
	for _, change := range changes {
		s.log.Debugw("metadata changed", "operation", id, "path", strings.Join(change.Path, "."), "from", change.From, "to", change.To)
	}
}
