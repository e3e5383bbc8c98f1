package session

import (
	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/generic"
)

type Event interface {
	// State is a snapshot taken right after the event was applied.
	State() State
}

type sessionEvent struct {
	state State
}

func (e sessionEvent) State() State {
	return e.state
}

type QueryChanged struct {
	sessionEvent
}

// QueryRejected is published when validation fails; the inline message is Err.Error().
type QueryRejected struct {
	sessionEvent
	Err error
}

type BusyChanged struct {
	sessionEvent
	Operation OperationID
	Kind      OperationKind
	Busy      bool
}

type MetadataFetched struct {
	sessionEvent
	Operation OperationID
	Old       generic.Option[video_grabber.VideoMetadata]
	New       video_grabber.VideoMetadata
}

// FetchFailed leaves any previous metadata in place.
type FetchFailed struct {
	sessionEvent
	Operation OperationID
	Err       error
}

// DownloadDispatched is published after the navigator has followed Link.
type DownloadDispatched struct {
	sessionEvent
	Operation OperationID
	Itag      video_grabber.Identifier
	Link      string
}

type DownloadFailed struct {
	sessionEvent
	Operation OperationID
	Itag      video_grabber.Identifier
	Err       error
}
