package tracker

import "fmt"

// Fetch sources used in FetchError and in the fetch error metric.
const (
	SourceMembership = "membership"
	SourceMetadata   = "metadata"
)

// FetchError is a transient failure of an external lookup during a tick.
// The tick treats it as an empty result and the loop keeps running.
type FetchError struct {
	Source   string
	Identity string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch for %s: %v", e.Source, e.Identity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
