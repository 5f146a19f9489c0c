// Package ciserver defines BuildPulse's boundary to an external CI server
// (a Jenkins-shaped view/job/build/run/artifact hierarchy) and a default
// HTTP implementation of that boundary.
package ciserver

import "context"

// JobRef is one job membership entry returned by a view listing.
type JobRef struct {
	Name string
	URL  string
}

// RunRef is one matrix cell's cheap identity, as the job/build listing
// reports it before any per-run detail has been fetched. This is all the
// puller needs to check a run against the cache before spending a permit
// on it.
type RunRef struct {
	URL    string
	Number int64
}

// BuildRef is everything a job's build listing reports about one build up
// front, runs included: url, number, timestamp, status (empty if still
// running), and each matrix cell's own cheap url/number. Cheap enough to
// fetch for every build on every pull, since it's what lets the puller
// decide which runs are already cached before any expensive per-run fetch.
type BuildRef struct {
	URL             string
	Number          int64
	TimestampMillis int64
	Status          string
	Runs            []RunRef
}

// RunDetail is one matrix cell's full detail: display name, terminal
// status, and artifact list. Fetching this is the expensive per-run call
// the puller only ever makes for a run not already found in the cache.
type RunDetail struct {
	URL           string
	DisplayName   string
	Status        string
	ArtifactPaths []string
}

// Server is BuildPulse's CI-server contract: everything the puller needs,
// independent of which CI product backs it.
type Server interface {
	// GetView lists every job the configured view tracks.
	GetView(ctx context.Context) ([]JobRef, error)
	// GetBuilds lists a job's known builds, most recent first, each with
	// its own cheap run url/number list.
	GetBuilds(ctx context.Context, job JobRef) ([]BuildRef, error)
	// GetRunDetail fetches one matrix cell's full detail: display name,
	// status, and artifact list. Called only when a run isn't already
	// found in the cache.
	GetRunDetail(ctx context.Context, job JobRef, build BuildRef, run RunRef) (*RunDetail, error)
	// FetchConsole fetches a run's plain-text console log.
	FetchConsole(ctx context.Context, run RunDetail) (string, error)
	// FetchArtifact fetches one artifact's raw bytes from a run.
	FetchArtifact(ctx context.Context, run RunDetail, path string) ([]byte, error)
}
