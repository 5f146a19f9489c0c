package ciserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hearthci/buildpulse/internal/bperrors"
)

// HTTPServer talks to a Jenkins-shaped JSON API over HTTP Basic Auth. Every
// request is retried with exponential backoff on transport errors and 5xx
// responses; a 4xx response is treated as a permanent Configuration error
// (bad credentials, missing job) and never retried.
type HTTPServer struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client

	// NewBackOff builds the retry policy for one logical request. Tests
	// substitute a zero-wait policy; production leaves this nil, which
	// defaults to a capped exponential backoff.
	NewBackOff func() backoff.BackOff
}

// NewHTTPServer builds an HTTPServer with BuildPulse's production defaults:
// a 30s per-attempt HTTP timeout and a capped exponential retry policy.
func NewHTTPServer(baseURL, username, password string) *HTTPServer {
	return &HTTPServer{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPServer) backOff() backoff.BackOff {
	if s.NewBackOff != nil {
		return s.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithMaxRetries(b, 3) // at most 4 attempts in all
}

// permanentError marks err as not worth retrying; backoff.Retry stops
// immediately when the operation returns one.
func permanentError(err error) error {
	return backoff.Permanent(err)
}

func (s *HTTPServer) get(ctx context.Context, path string) ([]byte, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, bperrors.Wrap(bperrors.Configuration, fmt.Errorf("ciserver: parsing base url %q: %w", s.BaseURL, err))
	}
	reqPath, query, _ := strings.Cut(path, "?")
	u.Path = u.Path + reqPath
	u.RawQuery = query

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return permanentError(err)
		}
		if s.Username != "" {
			req.SetBasicAuth(s.Username, s.Password)
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return fmt.Errorf("ciserver: requesting %s: %w", u, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ciserver: reading response from %s: %w", u, err)
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("ciserver: %s returned %d: %s", u, resp.StatusCode, truncate(b))
		case resp.StatusCode >= 400:
			return permanentError(fmt.Errorf("ciserver: %s returned %d: %s", u, resp.StatusCode, truncate(b)))
		case resp.StatusCode >= 300:
			return permanentError(fmt.Errorf("ciserver: unexpected redirect from %s (status %d)", u, resp.StatusCode))
		}

		body = b
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.backOff(), ctx)); err != nil {
		var perm *backoff.PermanentError
		if ok := isPermanent(err, &perm); ok {
			return nil, bperrors.Wrap(bperrors.Configuration, perm.Err)
		}
		return nil, bperrors.Wrap(bperrors.Transport, err)
	}
	return body, nil
}

func isPermanent(err error, out **backoff.PermanentError) bool {
	pe, ok := err.(*backoff.PermanentError)
	if ok {
		*out = pe
	}
	return ok
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

type viewDTO struct {
	Jobs []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"jobs"`
}

// GetView fetches /api/json?tree=jobs[name,url] for the configured view.
func (s *HTTPServer) GetView(ctx context.Context) ([]JobRef, error) {
	body, err := s.get(ctx, "/api/json?tree=jobs[name,url]")
	if err != nil {
		return nil, err
	}
	var v viewDTO
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, bperrors.Wrap(bperrors.Transport, fmt.Errorf("ciserver: decoding view response: %w", err))
	}
	out := make([]JobRef, len(v.Jobs))
	for i, j := range v.Jobs {
		out[i] = JobRef{Name: j.Name, URL: j.URL}
	}
	return out, nil
}

type jobDTO struct {
	Builds []struct {
		URL       string `json:"url"`
		Number    int64  `json:"number"`
		Timestamp int64  `json:"timestamp"`
		Result    string `json:"result"`
		Runs      []struct {
			URL    string `json:"url"`
			Number int64  `json:"number"`
		} `json:"runs"`
	} `json:"builds"`
}

// GetBuilds fetches job/api/json?tree=builds[url,number,timestamp,result,
// runs[url,number]] — the full build listing, runs included, in one cheap
// request per job. This is what lets the puller check every run against
// the cache before any per-run detail fetch.
func (s *HTTPServer) GetBuilds(ctx context.Context, job JobRef) ([]BuildRef, error) {
	const tree = "/api/json?tree=builds[url,number,timestamp,result,runs[url,number]]"
	body, err := s.get(ctx, jobPath(job.URL)+tree)
	if err != nil {
		return nil, err
	}
	var j jobDTO
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, bperrors.Wrap(bperrors.Transport, fmt.Errorf("ciserver: decoding job response: %w", err))
	}
	out := make([]BuildRef, len(j.Builds))
	for i, b := range j.Builds {
		runs := make([]RunRef, len(b.Runs))
		for k, r := range b.Runs {
			runs[k] = RunRef{URL: r.URL, Number: r.Number}
		}
		out[i] = BuildRef{
			URL:             b.URL,
			Number:          b.Number,
			TimestampMillis: b.Timestamp,
			Status:          b.Result,
			Runs:            runs,
		}
	}
	return out, nil
}

type runDetailDTO struct {
	DisplayName string `json:"displayName"`
	Result      string `json:"result"`
	Artifacts   []struct {
		RelativePath string `json:"relativePath"`
	} `json:"artifacts"`
}

// GetRunDetail fetches run/api/json?tree=displayName,result,artifacts[
// relativePath] for one matrix cell. The puller only calls this once a
// cache-miss is confirmed from the cheap BuildRef/RunRef listing.
func (s *HTTPServer) GetRunDetail(ctx context.Context, job JobRef, build BuildRef, run RunRef) (*RunDetail, error) {
	const tree = "/api/json?tree=displayName,result,artifacts[relativePath]"
	body, err := s.get(ctx, jobPath(run.URL)+tree)
	if err != nil {
		return nil, err
	}
	var d runDetailDTO
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, bperrors.Wrap(bperrors.Transport, fmt.Errorf("ciserver: decoding run response: %w", err))
	}
	paths := make([]string, len(d.Artifacts))
	for i, a := range d.Artifacts {
		paths[i] = a.RelativePath
	}
	return &RunDetail{URL: run.URL, DisplayName: d.DisplayName, Status: d.Result, ArtifactPaths: paths}, nil
}

// FetchConsole fetches a run's plain-text console log.
func (s *HTTPServer) FetchConsole(ctx context.Context, run RunDetail) (string, error) {
	body, err := s.get(ctx, jobPath(run.URL)+"/consoleText")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchArtifact fetches one artifact's raw bytes.
func (s *HTTPServer) FetchArtifact(ctx context.Context, run RunDetail, path string) ([]byte, error) {
	return s.get(ctx, jobPath(run.URL)+"/artifact/"+path)
}

// jobPath strips the scheme+host BuildPulse's configured BaseURL already
// carries, leaving only the CI server's own relative path, since job/build
// URLs in API responses are always absolute.
func jobPath(absoluteURL string) string {
	u, err := url.Parse(absoluteURL)
	if err != nil {
		return absoluteURL
	}
	return u.Path
}
