package video_grabber

import (
	"encoding/json"
	"fmt"

	"github.com/alanbriolat/video-grabber/generic"
)

// Identifier is the backend's opaque token for one format (its "itag"). It is kept as the raw JSON encoding the
// backend sent, so it is sent back byte-for-byte whether the backend uses numbers or strings.
type Identifier string

// StringIdentifier builds an Identifier for a string-typed token.
func StringIdentifier(s string) Identifier {
	return Identifier(generic.Unwrap(json.Marshal(s)))
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

func (id *Identifier) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid identifier %q", data)
	}
	*id = Identifier(data)
	return nil
}

// String gives the display form: the unquoted value for a string token, the raw JSON otherwise.
func (id Identifier) String() string {
	var s string
	if err := json.Unmarshal([]byte(id), &s); err == nil {
		return s
	}
	return string(id)
}

// FormatVariant is one downloadable rendition of a video.
type FormatVariant struct {
	Quality string     `json:"quality"`
	Size    string     `json:"size"`
	Itag    Identifier `json:"itag"`
}

// VideoInfo is the backend's answer to a metadata request, before any filtering.
type VideoInfo struct {
	Title     string
	Thumbnail string
	Formats   []FormatVariant
}

// VideoMetadata is what a session displays for the current query. No two Formats share a Quality.
type VideoMetadata struct {
	Title        string
	ThumbnailURL string
	Formats      []FormatVariant
}

// NewVideoMetadata builds fresh metadata from a backend answer, keeping only the first format of each quality.
func NewVideoMetadata(info VideoInfo) VideoMetadata {
	return VideoMetadata{
		Title:        info.Title,
		ThumbnailURL: info.Thumbnail,
		Formats:      UniqueFormats(info.Formats),
	}
}

// UniqueFormats is a stable filter that drops every format whose Quality was already seen earlier in the input.
// Identifiers are not considered.
func UniqueFormats(formats []FormatVariant) []FormatVariant {
	unique := make([]FormatVariant, 0, len(formats))
	seen := generic.NewSet[string]()
	for _, f := range formats {
		if seen.Add(f.Quality) {
			unique = append(unique, f)
		}
	}
	return unique
}

// FindQuality returns the format with the given quality, if any.
func (m VideoMetadata) FindQuality(quality string) generic.Option[FormatVariant] {
	for _, f := range m.Formats {
		if f.Quality == quality {
			return generic.Some(f)
		}
	}
	return generic.None[FormatVariant]()
}

// FindItag returns the first format whose identifier displays as itag, if any.
func (m VideoMetadata) FindItag(itag string) generic.Option[FormatVariant] {
	for _, f := range m.Formats {
		if f.Itag.String() == itag {
			return generic.Some(f)
		}
	}
	return generic.None[FormatVariant]()
}

func (m VideoMetadata) Clone() VideoMetadata {
	m.Formats = append([]FormatVariant(nil), m.Formats...)
	return m
}
