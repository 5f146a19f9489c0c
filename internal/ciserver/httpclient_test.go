package ciserver

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthci/buildpulse/internal/bperrors"
)

func zeroWaitServer(t *testing.T, handler http.HandlerFunc) *HTTPServer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &HTTPServer{
		BaseURL:  srv.URL,
		Username: "alice",
		Password: "secret",
		Client:   srv.Client(),
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		},
	}
}

func TestHTTPServer_GetView_SendsBasicAuth(t *testing.T) {
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(`{"jobs":[{"name":"build-linux","url":"http://ci/job/build-linux/"}]}`))
	})
	jobs, err := s.GetView(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "build-linux", jobs[0].Name)
}

func TestHTTPServer_GetView_RetriesOn5xx(t *testing.T) {
	var attempts int32
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"jobs":[]}`))
	})
	_, err := s.GetView(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestHTTPServer_GetView_DoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := s.GetView(t.Context())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	var bpErr *bperrors.Error
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, bperrors.Configuration, bpErr.Kind)
}

func TestHTTPServer_GetBuilds_ParsesNestedRuns(t *testing.T) {
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"builds": [
				{"url":"http://ci/job/x/42/","number":42,"timestamp":1700000000000,"result":"UNSTABLE",
				 "runs":[{"url":"http://ci/job/x/42/label=linux/","number":42}]}
			]
		}`))
	})
	builds, err := s.GetBuilds(t.Context(), JobRef{URL: "http://ci/job/x/"})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, int64(42), builds[0].Number)
	assert.Equal(t, "UNSTABLE", builds[0].Status)
	require.Len(t, builds[0].Runs, 1)
	assert.Equal(t, "http://ci/job/x/42/label=linux/", builds[0].Runs[0].URL)
	assert.Equal(t, int64(42), builds[0].Runs[0].Number)
}

func TestHTTPServer_GetRunDetail_ParsesArtifacts(t *testing.T) {
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"displayName":"linux","result":"FAILURE","artifacts":[{"relativePath":"logs/test.xml"}]}`))
	})
	rd, err := s.GetRunDetail(t.Context(),
		JobRef{URL: "http://ci/job/x/"},
		BuildRef{URL: "http://ci/job/x/42/", Number: 42},
		RunRef{URL: "http://ci/job/x/42/label=linux/", Number: 42})
	require.NoError(t, err)
	assert.Equal(t, "linux", rd.DisplayName)
	assert.Equal(t, "FAILURE", rd.Status)
	assert.Equal(t, []string{"logs/test.xml"}, rd.ArtifactPaths)
}

func TestHTTPServer_FetchConsole(t *testing.T) {
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/consoleText")
		w.Write([]byte("build failed\n"))
	})
	out, err := s.FetchConsole(t.Context(), RunDetail{URL: "http://ci/job/x/42/label=linux/"})
	require.NoError(t, err)
	assert.Equal(t, "build failed\n", out)
}

func TestHTTPServer_FetchArtifact(t *testing.T) {
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	s := zeroWaitServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/artifact/logs/test.xml")
		w.Write(want)
	})
	got, err := s.FetchArtifact(t.Context(), RunDetail{URL: "http://ci/job/x/42/label=linux/"}, "logs/test.xml")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// basicAuthHeader documents the wire format backoff retries must not
// corrupt across attempts; exercised indirectly via r.BasicAuth() above.
func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

var _ = basicAuthHeader
