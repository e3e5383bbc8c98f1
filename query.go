package video_grabber

import "strings"

// ValidateQuery rejects a query that is empty once surrounding whitespace is removed.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}
