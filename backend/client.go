// Package backend talks to the remote extraction service: one endpoint for video metadata, one for starting a
// download.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-grabber"
)

const (
	VideoInfoPath = "/getVideoInfo"
	DownloadPath  = "/download"

	maxResponseBytes = 8 << 20
)

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoInfoResponse struct {
	Title     string                         `json:"title"`
	Thumbnail string                         `json:"thumbnail"`
	Formats   []*video_grabber.FormatVariant `json:"formats"`
}

type downloadRequest struct {
	URL  string                   `json:"url"`
	Itag video_grabber.Identifier `json:"itag"`
}

type downloadResponse struct {
	DownloadLink string `json:"downloadLink"`
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}
	// Endpoint paths are joined onto the base path
	u.Path = strings.TrimRight(u.Path, "/")
	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) log() *zap.SugaredLogger {
	return zap.S().Named("backend")
}

// GetVideoInfo asks the backend for the title, thumbnail and formats of the video at query. The formats are
// returned exactly as sent, duplicates included.
func (c *Client) GetVideoInfo(ctx context.Context, query string) (*video_grabber.VideoInfo, error) {
	var resp videoInfoResponse
	if err := c.post(ctx, VideoInfoPath, videoInfoRequest{URL: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Formats == nil {
		return nil, &video_grabber.ResponseError{Endpoint: VideoInfoPath, StatusCode: http.StatusOK, Err: video_grabber.ErrMissingFormats}
	}
	formats := make([]video_grabber.FormatVariant, len(resp.Formats))
	for i, f := range resp.Formats {
		// A null entry would otherwise decode as a blank format
		if f == nil {
			return nil, &video_grabber.ResponseError{Endpoint: VideoInfoPath, StatusCode: http.StatusOK, Err: fmt.Errorf("%w: entry %d is null", video_grabber.ErrMalformedFormat, i)}
		}
		formats[i] = *f
	}
	c.log().Debugw("video info received", "title", resp.Title, "formats", len(formats))
	return &video_grabber.VideoInfo{
		Title:     resp.Title,
		Thumbnail: resp.Thumbnail,
		Formats:   formats,
	}, nil
}

// RequestDownload asks the backend to prepare the itag format of the video at query. The returned link is
// absolute: a relative downloadLink is resolved against the backend URL, as a browser would against the page.
func (c *Client) RequestDownload(ctx context.Context, query string, itag video_grabber.Identifier) (string, error) {
	var resp downloadResponse
	if err := c.post(ctx, DownloadPath, downloadRequest{URL: query, Itag: itag}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.DownloadLink) == "" {
		return "", &video_grabber.ResponseError{Endpoint: DownloadPath, StatusCode: http.StatusOK, Err: video_grabber.ErrMissingDownloadLink}
	}
	link, err := c.baseURL.Parse(resp.DownloadLink)
	if err != nil {
		return "", &video_grabber.ResponseError{Endpoint: DownloadPath, StatusCode: http.StatusOK, Err: fmt.Errorf("invalid download link: %w", err)}
	}
	c.log().Debugw("download link received", "itag", itag.String(), "link", link.String())
	return link.String(), nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawPath = ""
	return u.String()
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log().Debugw("sending request", "endpoint", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &video_grabber.NetworkError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &video_grabber.NetworkError{Endpoint: path, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &video_grabber.ResponseError{Endpoint: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s: %s", resp.Status, snippet(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &video_grabber.ResponseError{Endpoint: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed body: %w", err)}
	}
	return nil
}

func snippet(data []byte) string {
	s := []rune(strings.TrimSpace(string(data)))
	if len(s) > 200 {
		return string(s[:200]) + "..."
	}
	return string(s)
}
