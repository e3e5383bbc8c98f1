package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/internal/session"
)

func printMetadata(out io.Writer, metadata video_grabber.VideoMetadata) error {
	fmt.Fprintf(out, "Title:     %s\n", metadata.Title)
	fmt.Fprintf(out, "Thumbnail: %s\n", metadata.ThumbnailURL)
	if len(metadata.Formats) == 0 {
		_, err := fmt.Fprintln(out, "No formats available")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tQUALITY\tSIZE\tITAG")
	for i, f := range metadata.Formats {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, f.Quality, f.Size, f.Itag)
	}
	return w.Flush()
}

// parseIdentifier turns a user-typed itag into an Identifier: numbers are sent as JSON numbers, anything else as
// a JSON string.
func parseIdentifier(s string) video_grabber.Identifier {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return video_grabber.Identifier(s)
	}
	return video_grabber.StringIdentifier(s)
}

// selectFormat picks the format with the given quality, or the first format if quality is empty.
func selectFormat(metadata video_grabber.VideoMetadata, quality string) (video_grabber.FormatVariant, error) {
	if len(metadata.Formats) == 0 {
		return video_grabber.FormatVariant{}, fmt.Errorf("no formats available for %q", metadata.Title)
	}
	if quality == "" {
		return metadata.Formats[0], nil
	}
	if f := metadata.FindQuality(quality); f.IsSome() {
		return f.Value, nil
	}
	available := make([]string, len(metadata.Formats))
	for i, f := range metadata.Formats {
		available[i] = f.Quality
	}
	return video_grabber.FormatVariant{}, fmt.Errorf("no format with quality %q, available: %s", quality, strings.Join(available, ", "))
}

// stateView is the part of session.State worth diffing in the log.
type stateView struct {
	Query        string
	Busy         bool
	InputInvalid bool
	Title        string
	Formats      []string
}

func viewOf(state session.State) stateView {
	v := stateView{Query: state.Query, Busy: state.Busy, InputInvalid: state.InputInvalid}
	if state.Metadata.IsSome() {
		v.Title = state.Metadata.Value.Title
		for _, f := range state.Metadata.Value.Formats {
			v.Formats = append(v.Formats, f.Quality)
		}
	}
	return v
}

// observe logs session events until the event channel closes.
func observe(logger *zap.SugaredLogger, events <-chan session.Event) {
	var previous stateView
	for event := range events {
		logger.Debugf("event: %T", event)
		switch e := event.(type) {
		case session.FetchFailed:
			logger.Warnf("fetch %s failed: %v", e.Operation, e.Err)
		case session.DownloadFailed:
			logger.Warnf("download %s of %s failed: %v", e.Operation, e.Itag, e.Err)
		case session.DownloadDispatched:
			logger.Infof("download %s of %s dispatched to %s", e.Operation, e.Itag, e.Link)
		}
		current := viewOf(event.State())
		changes, err := diff.Diff(previous, current)
		if err != nil {
			logger.Errorf("failed to diff old and new session state: %v", err)
		} else {
			for _, change := range changes {
				logger.Debugf("%v: %#v -> %#v", change.Path, change.From, change.To)
			}
		}
		previous = current
	}
}
