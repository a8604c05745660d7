// Package videoid resolves user-supplied video links to bare YouTube video
// identifiers.
package videoid

import (
	"errors"
	"regexp"
)

var ErrInvalidVideoRef = errors.New("not a recognizable video id or url")

var (
	bareIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	urlRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
	}
)

// Extract returns the 11-character video id from a bare id or any of the
// common YouTube URL shapes.
func Extract(input string) (string, error) {
	if input == "" {
		return "", ErrInvalidVideoRef
	}

	if bareIDRe.MatchString(input) {
		return input, nil
	}

	for _, re := range urlRes {
		if match := re.FindStringSubmatch(input); len(match) > 1 {
			return match[1], nil
		}
	}

	return "", ErrInvalidVideoRef
}
