package session

import (
	"github.com/google/uuid"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/generic"
)

// State is everything the user can see for one session. Values returned by Session.State are snapshots.
type State struct {
	Query        string
	Metadata     generic.Option[video_grabber.VideoMetadata]
	Busy         bool
	InputInvalid bool
}

func (s State) clone() State {
	if m, ok := s.Metadata.Get(); ok {
		s.Metadata = generic.Some(m.Clone())
	}
	return s
}

// OperationID correlates the events and log lines of one fetch or download.
type OperationID string

func NewOperationID() OperationID {
	return OperationID(generic.Unwrap(uuid.NewRandom()).String())
}

type OperationKind string

const (
	OperationFetch    OperationKind = "fetch"
	OperationDownload OperationKind = "download"
)

// operation is the work handed out of the command loop while busy is held.
type operation struct {
	ID    OperationID
	Kind  OperationKind
	Query string
	Itag  video_grabber.Identifier
}

// outcome is the result of an operation, handed back into the command loop.
type outcome struct {
	op   operation
	info *video_grabber.VideoInfo
	link string
	err  error
}
