package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/backend"
	"github.com/alanbriolat/video-grabber/internal/backendtest"
	"github.com/alanbriolat/video-grabber/internal/sync_"
)

const testQuery = "https://youtu.be/abc"

var exampleInfo = video_grabber.VideoInfo{
	Title:     "Example video",
	Thumbnail: "https://i.ytimg.com/vi/abc/hqdefault.jpg",
	Formats: []video_grabber.FormatVariant{
		{Quality: "1080p", Size: "200MB", Itag: video_grabber.StringIdentifier("1")},
		{Quality: "1080p", Size: "199MB", Itag: video_grabber.StringIdentifier("2")},
		{Quality: "4k", Size: "800MB", Itag: video_grabber.StringIdentifier("3")},
	},
}

type fixture struct {
	session    *Session
	server     *backendtest.Server
	navigation *sync_.Mutexed[[]string]
	navErr     error
	navHook    func()
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	f := &fixture{
		server:     backendtest.NewServer(),
		navigation: sync_.NewMutexed[[]string](nil),
	}
	t.Cleanup(f.server.Close)
	client, err := backend.NewClient(f.server.URL)
	require_.NoError(t, err)
	f.session, err = New(context.Background(), Config{
		Backend: client,
		Navigator: NavigatorFunc(func(ctx context.Context, link string) error {
			f.navigation.Update(func(links *[]string) { *links = append(*links, link) })
			if f.navHook != nil {
				f.navHook()
			}
			return f.navErr
		}),
		RequestTimeout: timeout,
	})
	require_.NoError(t, err)
	t.Cleanup(f.session.Close)
	return f
}

func (f *fixture) state(t *testing.T) State {
	state, err := f.session.State()
	require_.NoError(t, err)
	return state
}

func (f *fixture) fetched(t *testing.T) video_grabber.VideoMetadata {
	f.server.SetVideoInfo(exampleInfo)
	_, err := f.session.SetQuery(testQuery)
	require_.NoError(t, err)
	m, err := f.session.FetchMetadata(context.Background())
	require_.NoError(t, err)
	return m
}

func TestNew_RequiresCollaborators(t *testing.T) {
	assert := assert_.New(t)
	_, err := New(context.Background(), Config{})
	assert.Error(err)
	_, err = New(context.Background(), Config{Backend: &backend.Client{}})
	assert.Error(err)
}

func TestSession_InitialState(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)

	state := f.state(t)
	assert.Equal("", state.Query)
	assert.True(state.Metadata.IsNone())
	assert.False(state.Busy)
	assert.False(state.InputInvalid)
}

func TestSession_FetchMetadata(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	f := newFixture(t, time.Second)

	m := f.fetched(t)
	expected := []video_grabber.FormatVariant{
		{Quality: "1080p", Size: "200MB", Itag: video_grabber.StringIdentifier("1")},
		{Quality: "4k", Size: "800MB", Itag: video_grabber.StringIdentifier("3")},
	}
	assert.Equal("Example video", m.Title)
	assert.Equal(exampleInfo.Thumbnail, m.ThumbnailURL)
	assert.Equal(expected, m.Formats)

	state := f.state(t)
	require.True(state.Metadata.IsSome())
	assert.Equal(expected, state.Metadata.Value.Formats)
	assert.False(state.Busy)
	assert.False(state.InputInvalid)

	requests := f.server.RequestsTo(backend.VideoInfoPath)
	require.Len(requests, 1)
	assert.JSONEq(`"`+testQuery+`"`, string(requests[0].Body["url"]))
}

func TestSession_FetchMetadata_ReplacesPrevious(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	f.fetched(t)

	f.server.SetVideoInfo(video_grabber.VideoInfo{Title: "Second", Formats: []video_grabber.FormatVariant{
		{Quality: "360p", Size: "10MB", Itag: video_grabber.Identifier("18")},
	}})
	m, err := f.session.FetchMetadata(context.Background())
	assert.NoError(err)
	assert.Equal("Second", m.Title)
	assert.Equal("", m.ThumbnailURL, "metadata should be replaced, not merged")
	assert.Len(f.state(t).Metadata.Value.Formats, 1)

	f.server.SetVideoInfo(video_grabber.VideoInfo{Title: "Empty"})
	m, err = f.session.FetchMetadata(context.Background())
	assert.NoError(err)
	assert.Empty(m.Formats)
	assert.True(f.state(t).Metadata.IsSome())
}

func TestSession_EmptyQuery(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	f.server.SetVideoInfo(exampleInfo)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := f.session.SetQuery(q)
		assert.NoError(err)
		_, err = f.session.FetchMetadata(context.Background())
		assert.ErrorIs(err, video_grabber.ErrEmptyQuery)
		state := f.state(t)
		assert.True(state.InputInvalid)
		assert.False(state.Busy)
	}
	assert.Empty(f.server.Requests(), "blank query must not reach the backend")

	// A later valid submission clears the indicator
	_, err := f.session.SetQuery(testQuery)
	assert.NoError(err)
	assert.True(f.state(t).InputInvalid, "editing the query alone does not clear the indicator")
	_, err = f.session.FetchMetadata(context.Background())
	assert.NoError(err)
	assert.False(f.state(t).InputInvalid)
}

func TestSession_Validate(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)

	assert.ErrorIs(f.session.Validate(), video_grabber.ErrEmptyQuery)
	assert.True(f.state(t).InputInvalid)
	_, _ = f.session.SetQuery(testQuery)
	assert.NoError(f.session.Validate())
	assert.False(f.state(t).InputInvalid)
	assert.Empty(f.server.Requests())
}

func TestSession_FailedFetchKeepsMetadata(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	first := f.fetched(t)

	for _, response := range []backendtest.Response{
		{Status: http.StatusInternalServerError, Raw: `{"error":"boom"}`},
		{Raw: `not json`},
		{Raw: `{"title":"no formats"}`},
		{Raw: `{"formats":[{"quality":"720p","size":"1MB","itag":"1"},null]}`},
	} {
		f.server.SetInfoResponse(response)
		_, err := f.session.FetchMetadata(context.Background())
		var respErr *video_grabber.ResponseError
		assert.ErrorAs(err, &respErr)

		state := f.state(t)
		assert.False(state.Busy)
		if assert.True(state.Metadata.IsSome()) {
			assert.Equal(first, state.Metadata.Value)
		}
	}
}

func TestSession_BusySerializesOperations(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	f := newFixture(t, 0)
	f.server.SetVideoInfo(exampleInfo)
	f.server.SetDownloadLink("/file.mp4")
	_, err := f.session.SetQuery(testQuery)
	require.NoError(err)

	release := f.server.Hold()
	defer release()
	result := make(chan error, 1)
	go func() {
		_, err := f.session.FetchMetadata(context.Background())
		result <- err
	}()

	select {
	case <-f.server.Arrived():
	case <-time.After(5 * time.Second):
		require.FailNow("request never reached the backend")
	}
	assert.True(f.state(t).Busy, "busy should be held while the request is in flight")

	_, err = f.session.FetchMetadata(context.Background())
	assert.ErrorIs(err, video_grabber.ErrBusy)
	_, err = f.session.Download(context.Background(), video_grabber.StringIdentifier("1"))
	assert.ErrorIs(err, video_grabber.ErrBusy)
	// Busy rejects before validation
	_, _ = f.session.SetQuery("")
	_, err = f.session.FetchMetadata(context.Background())
	assert.ErrorIs(err, video_grabber.ErrBusy)
	assert.False(f.state(t).InputInvalid)

	release()
	select {
	case err := <-result:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		require.FailNow("fetch never completed")
	}
	assert.False(f.state(t).Busy)
	assert.Len(f.server.Requests(), 1, "rejected triggers must not issue requests")
	assert.Empty(f.navigation.Get())
}

// waitForRequest skips requests that arrived earlier until one reaches path.
func waitForRequest(t *testing.T, server *backendtest.Server, path string) {
	for {
		select {
		case r := <-server.Arrived():
			if r.Path == path {
				return
			}
		case <-time.After(5 * time.Second):
			require_.FailNow(t, "request never reached the backend", path)
		}
	}
}

func (f *fixture) assertRejectedWhileBusy(t *testing.T) {
	assert := assert_.New(t)
	assert.True(f.state(t).Busy, "busy should be held while the download is in flight")
	_, err := f.session.FetchMetadata(context.Background())
	assert.ErrorIs(err, video_grabber.ErrBusy)
	_, err = f.session.Download(context.Background(), video_grabber.StringIdentifier("1"))
	assert.ErrorIs(err, video_grabber.ErrBusy)
}

func TestSession_BusyDuringDownload(t *testing.T) {
	t.Run("backend request", func(t *testing.T) {
		assert := assert_.New(t)
		f := newFixture(t, 0)
		before := f.fetched(t)
		f.server.SetDownloadLink("/x.mp4")
		release := f.server.Hold()
		defer release()

		result := make(chan error, 1)
		go func() {
			_, err := f.session.Download(context.Background(), before.Formats[0].Itag)
			result <- err
		}()
		waitForRequest(t, f.server, backend.DownloadPath)
		f.assertRejectedWhileBusy(t)

		release()
		select {
		case err := <-result:
			assert.NoError(err)
		case <-time.After(5 * time.Second):
			require_.FailNow(t, "download never completed")
		}
		assert.False(f.state(t).Busy)
		assert.Len(f.server.RequestsTo(backend.VideoInfoPath), 1, "rejected fetch must not issue a request")
		assert.Len(f.server.RequestsTo(backend.DownloadPath), 1)
	})

	t.Run("navigation", func(t *testing.T) {
		assert := assert_.New(t)
		f := newFixture(t, 0)
		before := f.fetched(t)
		f.server.SetDownloadLink("/x.mp4")
		entered := make(chan struct{})
		unblock := make(chan struct{})
		f.navHook = func() {
			close(entered)
			<-unblock
		}

		result := make(chan error, 1)
		go func() {
			_, err := f.session.Download(context.Background(), before.Formats[0].Itag)
			result <- err
		}()
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			require_.FailNow(t, "navigator was never called")
		}
		f.assertRejectedWhileBusy(t)

		close(unblock)
		select {
		case err := <-result:
			assert.NoError(err)
		case <-time.After(5 * time.Second):
			require_.FailNow(t, "download never completed")
		}
		assert.False(f.state(t).Busy)
		assert.Len(f.navigation.Get(), 1)
	})
}

func TestSession_Timeout(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 50*time.Millisecond)
	f.server.SetVideoInfo(exampleInfo)
	_, _ = f.session.SetQuery(testQuery)
	release := f.server.Hold()
	defer release()

	_, err := f.session.FetchMetadata(context.Background())
	var netErr *video_grabber.NetworkError
	assert.ErrorAs(err, &netErr)
	state := f.state(t)
	assert.False(state.Busy, "a timed-out request must release busy")
	assert.True(state.Metadata.IsNone())
}

func TestSession_Download(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	f := newFixture(t, time.Second)
	before := f.fetched(t)
	f.server.SetDownloadLink("/downloads/abc.mp4")

	link, err := f.session.Download(context.Background(), before.Formats[1].Itag)
	require.NoError(err)
	assert.Equal(f.server.URL+"/downloads/abc.mp4", link)
	assert.Equal([]string{link}, f.navigation.Get(), "exactly one navigation")

	requests := f.server.RequestsTo(backend.DownloadPath)
	require.Len(requests, 1)
	assert.JSONEq(`"`+testQuery+`"`, string(requests[0].Body["url"]))
	assert.JSONEq(`"3"`, string(requests[0].Body["itag"]))

	state := f.state(t)
	assert.False(state.Busy)
	assert.Equal(before, state.Metadata.Value, "download must not touch metadata")
}

func TestSession_Download_NoExistenceCheck(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	f.server.SetDownloadLink("https://cdn.example.com/x.mp4")
	_, _ = f.session.SetQuery(testQuery)

	link, err := f.session.Download(context.Background(), video_grabber.Identifier("999"))
	assert.NoError(err)
	assert.Equal("https://cdn.example.com/x.mp4", link)
	assert.True(f.state(t).Metadata.IsNone())
}

func TestSession_DownloadFailures(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	before := f.fetched(t)

	f.server.SetDownloadResponse(backendtest.Response{Status: http.StatusInternalServerError, Raw: `{}`})
	_, err := f.session.Download(context.Background(), before.Formats[0].Itag)
	var respErr *video_grabber.ResponseError
	assert.ErrorAs(err, &respErr)
	assert.Empty(f.navigation.Get(), "no navigation on failure")
	state := f.state(t)
	assert.False(state.Busy)
	assert.Equal(before, state.Metadata.Value)

	f.server.SetDownloadLink("/x.mp4")
	f.navErr = errors.New("disk full")
	_, err = f.session.Download(context.Background(), before.Formats[0].Itag)
	assert.ErrorIs(err, f.navErr)
	assert.False(f.state(t).Busy)
}

func receive(t *testing.T, events <-chan Event) Event {
	select {
	case e, ok := <-events:
		require_.True(t, ok, "event stream closed")
		return e
	case <-time.After(5 * time.Second):
		require_.FailNow(t, "timed out waiting for event")
		return nil
	}
}

func TestSession_Events(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	f := newFixture(t, 0)
	f.server.SetVideoInfo(exampleInfo)
	f.server.SetDownloadLink("/x.mp4")

	sub, err := f.session.Subscribe()
	require.NoError(err)
	defer sub.Close()
	events := sub.Receive()

	_, _ = f.session.FetchMetadata(context.Background())
	rejected, ok := receive(t, events).(QueryRejected)
	require.True(ok)
	assert.ErrorIs(rejected.Err, video_grabber.ErrEmptyQuery)
	assert.True(rejected.State().InputInvalid)

	_, _ = f.session.SetQuery(testQuery)
	assert.IsType(QueryChanged{}, receive(t, events))

	_, err = f.session.FetchMetadata(context.Background())
	require.NoError(err)
	started, ok := receive(t, events).(BusyChanged)
	require.True(ok)
	assert.True(started.Busy)
	assert.True(started.State().Busy)
	assert.Equal(OperationFetch, started.Kind)
	fetched, ok := receive(t, events).(MetadataFetched)
	require.True(ok)
	assert.Equal(started.Operation, fetched.Operation)
	assert.True(fetched.Old.IsNone())
	assert.Len(fetched.New.Formats, 2)
	stopped, ok := receive(t, events).(BusyChanged)
	require.True(ok)
	assert.False(stopped.Busy)
	assert.False(stopped.State().Busy)
	assert.Equal(started.Operation, stopped.Operation)

	f.server.SetInfoResponse(backendtest.Response{Status: http.StatusBadGateway, Raw: `{}`})
	_, err = f.session.FetchMetadata(context.Background())
	require.Error(err)
	assert.IsType(BusyChanged{}, receive(t, events))
	failed, ok := receive(t, events).(FetchFailed)
	require.True(ok)
	assert.ErrorIs(failed.Err, err)
	assert.True(failed.State().Metadata.IsSome())
	assert.IsType(BusyChanged{}, receive(t, events))

	_, err = f.session.Download(context.Background(), video_grabber.StringIdentifier("3"))
	require.NoError(err)
	assert.IsType(BusyChanged{}, receive(t, events))
	dispatched, ok := receive(t, events).(DownloadDispatched)
	require.True(ok)
	assert.Equal(f.server.URL+"/x.mp4", dispatched.Link)
	assert.Equal("3", dispatched.Itag.String())
	assert.IsType(BusyChanged{}, receive(t, events))
}

func TestSession_SubscribeFiltered(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	f.server.SetVideoInfo(exampleInfo)

	sub, err := f.session.SubscribeFiltered(func(e Event) bool {
		_, ok := e.(MetadataFetched)
		return ok
	})
	assert.NoError(err)
	defer sub.Close()

	f.fetched(t)
	assert.IsType(MetadataFetched{}, receive(t, sub.Receive()))
}

func TestSession_Close(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, 0)
	sub, err := f.session.Subscribe()
	assert.NoError(err)

	f.session.Close()
	<-f.session.Done()
	_, err = f.session.State()
	assert.ErrorIs(err, video_grabber.ErrSessionClosed)
	_, err = f.session.FetchMetadata(context.Background())
	assert.ErrorIs(err, video_grabber.ErrSessionClosed)
	_, err = f.session.Download(context.Background(), video_grabber.StringIdentifier("1"))
	assert.ErrorIs(err, video_grabber.ErrSessionClosed)

	_, ok := <-sub.Receive()
	assert.False(ok, "subscribers are closed with the session")
	f.session.Close()
}
