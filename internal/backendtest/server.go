// Package backendtest provides an in-process stand-in for the extraction backend, speaking the same JSON contract.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/internal/sync_"
)

// Request is one call received by the Server.
type Request struct {
	Path string
	Body map[string]json.RawMessage
}

// Response is what the Server answers on one endpoint. A zero Status means 200; a non-empty Raw body is sent
// verbatim instead of encoding Body.
type Response struct {
	Status int
	Body   any
	Raw    string
}

type handlers struct {
	info     Response
	download Response
	// Closed to release requests held by Hold
	gate chan struct{}
}

type Server struct {
	*httptest.Server
	handlers *sync_.Mutexed[handlers]
	requests *sync_.Mutexed[[]Request]
	arrived  chan Request
}

func NewServer() *Server {
	s := &Server{
		handlers: sync_.NewMutexed(handlers{
			info:     Response{Status: http.StatusNotFound, Raw: `{"error":"no video info configured"}`},
			download: Response{Status: http.StatusNotFound, Raw: `{"error":"no download configured"}`},
		}),
		requests: sync_.NewMutexed[[]Request](nil),
		arrived:  make(chan Request, 64),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(videoInfoPath, func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, func(h handlers) Response { return h.info })
	})
	mux.HandleFunc(downloadPath, func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, func(h handlers) Response { return h.download })
	})
	s.Server = httptest.NewServer(mux)
	return s
}

// Paths are duplicated here so the double doesn't depend on the client it is testing.
const (
	videoInfoPath = "/getVideoInfo"
	downloadPath  = "/download"
)

// SetVideoInfo makes /getVideoInfo succeed with the given info.
func (s *Server) SetVideoInfo(info video_grabber.VideoInfo) {
	formats := info.Formats
	if formats == nil {
		formats = []video_grabber.FormatVariant{}
	}
	s.SetInfoResponse(Response{Body: map[string]any{
		"title":     info.Title,
		"thumbnail": info.Thumbnail,
		"formats":   formats,
	}})
}

func (s *Server) SetInfoResponse(r Response) {
	s.handlers.Update(func(h *handlers) { h.info = r })
}

// SetDownloadLink makes /download succeed with the given link.
func (s *Server) SetDownloadLink(link string) {
	s.SetDownloadResponse(Response{Body: map[string]string{"downloadLink": link}})
}

func (s *Server) SetDownloadResponse(r Response) {
	s.handlers.Update(func(h *handlers) { h.download = r })
}

// Hold makes every following request wait until the returned release func is called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.handlers.Update(func(h *handlers) { h.gate = gate })
	var released sync_.Event
	return func() {
		if released.Set() {
			s.handlers.Update(func(h *handlers) { h.gate = nil })
			close(gate)
		}
	}
}

// Arrived delivers each request as soon as it is received, before any Hold applies.
func (s *Server) Arrived() <-chan Request {
	return s.arrived
}

func (s *Server) Requests() []Request {
	return append([]Request(nil), s.requests.Get()...)
}

func (s *Server) RequestsTo(path string) []Request {
	var matching []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			matching = append(matching, r)
		}
	}
	return matching
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, pick func(handlers) Response) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req := Request{Path: r.URL.Path}
	data, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(data, &req.Body); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}
	s.requests.Update(func(rs *[]Request) { *rs = append(*rs, req) })
	select {
	case s.arrived <- req:
	default:
	}

	if gate := s.handlers.Get().gate; gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	resp := pick(s.handlers.Get())
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if resp.Raw != "" {
		_, _ = io.WriteString(w, resp.Raw)
	} else {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}
