package video_grabber

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const DefaultBackendURL = "http://localhost:5000"

type Config struct {
	// Base URL of the extraction backend; the fixed endpoint paths are resolved against it.
	BackendURL string
	// Upper bound on each backend request, 0 for none.
	RequestTimeout time.Duration
	// Where followed download links are saved.
	TargetDir string
}

var DefaultConfig = Config{
	BackendURL:     DefaultBackendURL,
	RequestTimeout: 2 * time.Minute,
	TargetDir:      ".",
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var result error
	if strings.TrimSpace(c.BackendURL) == "" {
		result = multierror.Append(result, errors.New("backend URL is required"))
	} else if u, err := url.Parse(c.BackendURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid backend URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		result = multierror.Append(result, fmt.Errorf("backend URL must be http or https, got %q", u.Scheme))
	} else if u.Host == "" {
		result = multierror.Append(result, errors.New("backend URL has no host"))
	}
	if c.RequestTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("request timeout must not be negative, got %v", c.RequestTimeout))
	}
	if strings.TrimSpace(c.TargetDir) == "" {
		result = multierror.Append(result, errors.New("target directory is required"))
	}
	return result
}
