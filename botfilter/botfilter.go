// Package botfilter loads the set of chat handles that belong to bots and
// must be left out of activity reports. The set is loaded once at startup;
// a failed load yields an empty set rather than an error.
package botfilter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// DefaultURL is the published bot list the tracker has always used.
const DefaultURL = "https://raw.githubusercontent.com/HZRD-Media/Twitch-Viewer-Tracker-Discord-Bot/ac4f1a960ad974afbe0f2b52f81f78395999024b/bot_usernames.json"

// Builtin is the fallback list of well-known chat bots.
var Builtin = []string{
	"moobot",
	"wizebot",
	"nightbot",
	"streamlabs",
	"streamelements",
	"pokemoncommunitygame",
	"soundalerts",
	"blerp",
}

// Set is an immutable, case-insensitive set of bot handles.
type Set struct {
	names map[string]struct{}
}

// New builds a Set from names.
func New(names ...string) Set {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			m[n] = struct{}{}
		}
	}
	return Set{names: m}
}

// Contains reports whether handle is a bot.
func (s Set) Contains(handle string) bool {
	_, ok := s.names[strings.ToLower(strings.TrimSpace(handle))]
	return ok
}

// Len returns the number of handles.
func (s Set) Len() int { return len(s.names) }

// Names returns the handles sorted.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Source provides the raw bot list.
type Source interface {
	Load(ctx context.Context) ([]string, error)
}

// Load reads src once. Any error is logged and yields an empty Set.
func Load(ctx context.Context, src Source) Set {
	names, err := src.Load(ctx)
	if err != nil {
		slog.Error("bot list load failed; bot filtering disabled", slog.Any("err", err))
		return New()
	}
	set := New(names...)
	slog.Info("bot list loaded", slog.Int("count", set.Len()))
	slog.Debug("bot list", slog.Any("names", set.Names()))
	return set
}

type document struct {
	BotUsernames []string `json:"bot_usernames"`
}

func decode(r io.Reader) ([]string, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode bot list: %w", err)
	}
	return doc.BotUsernames, nil
}

// URLSource fetches a JSON document of the form {"bot_usernames": [...]}.
type URLSource struct {
	URL        string
	HTTPClient *http.Client
}

func (u URLSource) Load(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return nil, err
	}
	hc := u.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download bot list: status %d", resp.StatusCode)
	}
	return decode(resp.Body)
}

// FileSource reads the same JSON document from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Load(context.Context) ([]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return decode(fh)
}

// StaticSource returns a fixed list.
type StaticSource []string

func (s StaticSource) Load(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}
