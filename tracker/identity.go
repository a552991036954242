package tracker

import (
	"errors"
	"regexp"
	"strings"
)

// linkMarker is the substring that makes a channel message a stream link.
const linkMarker = "twitch.tv/"

var (
	// ErrNoStreamLink is returned when a message does not contain a stream link at all.
	ErrNoStreamLink = errors.New("no stream link in message")
	// ErrInvalidStreamLink is returned when the link marker is present but no
	// usable channel login follows it.
	ErrInvalidStreamLink = errors.New("stream link has no channel login")
)

// Twitch logins are 1-25 characters of [a-z0-9_].
var loginPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// ExtractIdentity derives the canonical stream identity from a posted link.
//
// Only the last marker counts, and only the first whitespace-delimited token
// after it; leading whitespace after the marker is skipped. Anything after the login (path segments, query, fragment,
// trailing punctuation) is dropped and the result is lower-cased, so the same
// link text always maps to the same registry key.
func ExtractIdentity(content string) (string, error) {
	lower := strings.ToLower(content)
	i := strings.LastIndex(lower, linkMarker)
	if i < 0 {
		return "", ErrNoStreamLink
	}
	rest := lower[i+len(linkMarker):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", ErrInvalidStreamLink
	}
	token := fields[0]
	if j := strings.IndexAny(token, "/?#"); j >= 0 {
		token = token[:j]
	}
	token = strings.TrimRight(token, ".,;:!)>]}'\"")
	if !loginPattern.MatchString(token) {
		return "", ErrInvalidStreamLink
	}
	return token, nil
}
