package transfer

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/alanbriolat/video-grabber/generic"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	path := strings.Trim(url.Path, "/")
	if path == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(path, "/")
	return cleanFilename(pathElements[len(pathElements)-1])
}

// FilenameFromContentDisposition returns the filename parameter of a Content-Disposition header value.
func FilenameFromContentDisposition(header string) (string, error) {
	if header == "" {
		return "", ErrNoFilename
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoFilename, err)
	}
	return cleanFilename(params["filename"])
}

// FallbackFilename names a download that carries no usable filename after a hash of its URL.
func FallbackFilename(link string) string {
	urlHash := sha1.New()
	generic.Unwrap(urlHash.Write([]byte(link)))
	return fmt.Sprintf("%x.bin", urlHash.Sum(nil))
}

// filenameForResponse picks a filename the way a browser does: Content-Disposition, then the final URL's path,
// then FallbackFilename.
func filenameForResponse(resp *http.Response, link string) string {
	if name, err := FilenameFromContentDisposition(resp.Header.Get("Content-Disposition")); err == nil {
		return name
	}
	if resp.Request != nil {
		if name, err := FilenameFromURL(resp.Request.URL); err == nil {
			return name
		}
	}
	return FallbackFilename(link)
}

func cleanFilename(filename string) (string, error) {
	// Never let a server pick the directory
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	filename = strings.TrimSpace(filename)
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" || filename == string(filepath.Separator) {
		return "", ErrNoFilename
	}
	return filename, nil
}
