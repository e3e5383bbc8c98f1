package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-grabber/generic"
)

var protocols = generic.NewSet("http", "https")

// ProgressFunc receives the bytes written so far and the bytes expected, where expected is -1 if unknown.
type ProgressFunc func(downloaded int64, expected int64)

// Saver follows a download link and saves whatever it points to into a directory, like a browser download.
// It satisfies session.Navigator.
type Saver struct {
	client    *http.Client
	targetDir string
	progress  ProgressFunc
	log       *zap.SugaredLogger
}

type SaverBuilder interface {
	Build() (*Saver, error)
	WithHTTPClient(client *http.Client) SaverBuilder
	WithProgressCallback(f ProgressFunc) SaverBuilder
	WithTargetDir(dir string) SaverBuilder
}

type saverBuilder struct {
	client    *http.Client
	progress  ProgressFunc
	targetDir string
}

func NewSaverBuilder() SaverBuilder {
	return &saverBuilder{
		client:    http.DefaultClient,
		targetDir: ".",
	}
}

func (b *saverBuilder) Build() (*Saver, error) {
	if err := os.MkdirAll(b.targetDir, 0775); err != nil {
		return nil, fmt.Errorf("failed to create target dir: %w", err)
	}
	return &Saver{
		client:    b.client,
		targetDir: b.targetDir,
		progress:  b.progress,
		log:       zap.S().Named("transfer"),
	}, nil
}

func (b *saverBuilder) WithHTTPClient(client *http.Client) SaverBuilder {
	b.client = client
	return b
}

func (b *saverBuilder) WithProgressCallback(f ProgressFunc) SaverBuilder {
	b.progress = f
	return b
}

func (b *saverBuilder) WithTargetDir(dir string) SaverBuilder {
	b.targetDir = dir
	return b
}

func (s *Saver) Navigate(ctx context.Context, link string) error {
	_, err := s.Save(ctx, link)
	return err
}

// Save downloads link into the target directory and returns the path of the saved file. The file only appears
// once the transfer has completed, replacing any existing file of the same name.
func (s *Saver) Save(ctx context.Context, link string) (string, error) {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid download link: %w", err)
	}
	if !protocols.Contains(parsedURL.Scheme) {
		return "", fmt.Errorf("unsupported download link scheme %q", parsedURL.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	targetPath := filepath.Join(s.targetDir, filenameForResponse(resp, link))
	s.log.Infow("saving download", "link", link, "path", targetPath, "size", resp.ContentLength)

	p := &progress{callback: s.progress}
	p.AddExpectedBytes(resp.ContentLength)
	if err := s.saveStream(targetPath, &readerContext{ctx: ctx, r: resp.Body}, p); err != nil {
		return "", err
	}
	s.log.Infow("download saved", "path", targetPath, "bytes", p.downloaded)
	return targetPath, nil
}

// saveStream writes to a temporary file next to targetPath and renames it into place once complete.
func (s *Saver) saveStream(targetPath string, stream io.Reader, p *progress) (err error) {
	f, err := os.CreateTemp(filepath.Dir(targetPath), "."+filepath.Base(targetPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			if rmErr := os.Remove(f.Name()); rmErr != nil {
				s.log.Warnw("failed to remove temp file", "path", f.Name(), "error", rmErr)
			}
		}
	}()

	// progress is last so that a failed write is not counted
	if _, err = io.Copy(io.MultiWriter(f, p), stream); err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(f.Name(), targetPath); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}
