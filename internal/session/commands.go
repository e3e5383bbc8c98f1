package session

import (
	"context"
	"fmt"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/generic"
	"github.com/alanbriolat/video-grabber/internal/lpc"
)

type (
	stateCommand    = *lpc.Command[generic.Void, State]
	setQueryCommand = *lpc.Command[string, State]
	validateCommand = *lpc.Command[generic.Void, generic.Void]
	beginCommand    = *lpc.Command[operation, operation]
	finishCommand   = *lpc.Command[outcome, State]
)

func call[Arg, Response any](s *Session, c *lpc.Command[Arg, Response]) (Response, error) {
	select {
	case s.commands <- c:
		return c.Wait()
	case <-s.ctx.Done():
		var zero Response
		return zero, video_grabber.ErrSessionClosed
	}
}

// State returns a snapshot of the session state.
func (s *Session) State() (State, error) {
	return call(s, stateCommand(nil).New(generic.NewVoid()))
}

// SetQuery replaces the query, as when the user edits the input.
func (s *Session) SetQuery(query string) (State, error) {
	return call(s, setQueryCommand(nil).New(query))
}

// Validate checks the current query, setting or clearing InputInvalid. It never touches the network.
func (s *Session) Validate() error {
	_, err := call(s, validateCommand(nil).New(generic.NewVoid()))
	return err
}

// FetchMetadata validates the current query, then fetches its metadata and replaces the session's metadata with
// it. On failure the previous metadata, if any, is left as it was.
//
// Returns video_grabber.ErrBusy without doing anything if another operation is in flight, and
// video_grabber.ErrEmptyQuery without any request if the query is blank.
func (s *Session) FetchMetadata(ctx context.Context) (video_grabber.VideoMetadata, error) {
	op, err := call(s, beginCommand(nil).New(operation{Kind: OperationFetch}))
	if err != nil {
		return video_grabber.VideoMetadata{}, err
	}

	reqCtx, cancel := s.requestContext(ctx, s.config.RequestTimeout)
	info, err := s.config.Backend.GetVideoInfo(reqCtx, op.Query)
	cancel()

	state, finishErr := call(s, finishCommand(nil).New(outcome{op: op, info: info, err: err}))
	if err != nil {
		return video_grabber.VideoMetadata{}, err
	}
	if finishErr != nil {
		return video_grabber.VideoMetadata{}, finishErr
	}
	return state.Metadata.Expect("metadata missing after successful fetch"), nil
}

// Download asks the backend for a download link for itag and, if one is returned, hands it to the Navigator.
// Session metadata is never modified. itag is not checked against the current formats.
func (s *Session) Download(ctx context.Context, itag video_grabber.Identifier) (string, error) {
	op, err := call(s, beginCommand(nil).New(operation{Kind: OperationDownload, Itag: itag}))
	if err != nil {
		return "", err
	}

	reqCtx, cancel := s.requestContext(ctx, s.config.RequestTimeout)
	link, err := s.config.Backend.RequestDownload(reqCtx, op.Query, op.Itag)
	cancel()
	if err == nil {
		// Following the link may be a long transfer, so only the session bounds it
		navCtx, cancelNav := s.requestContext(ctx, 0)
		if navErr := s.config.Navigator.Navigate(navCtx, link); navErr != nil {
			err = fmt.Errorf("failed to navigate to %s: %w", link, navErr)
		}
		cancelNav()
	}

	_, finishErr := call(s, finishCommand(nil).New(outcome{op: op, link: link, err: err}))
	if err != nil {
		return "", err
	}
	if finishErr != nil {
		return "", finishErr
	}
	return link, nil
}
