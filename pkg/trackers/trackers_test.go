package trackers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTracker(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
		ok    bool
	}{
		{"udp://tracker.example.com:1337/announce", "udp://tracker.example.com:1337/announce", true},
		{"  udp://tracker.example.com:1337/announce  ", "udp://tracker.example.com:1337/announce", true},
		{"udp://Tracker.Example.COM:1337/announce", "udp://tracker.example.com:1337/announce", true},
		{"HTTP://EXAMPLE.com:80/announce", "http://example.com/announce", true},
		{"https://example.com:443/announce", "https://example.com/announce", true},
		{"https://example.com:8443/announce", "https://example.com:8443/announce", true},
		{"https://example.com/", "https://example.com", true},
		{"wss://example.com/announce", "wss://example.com/announce", true},
		{"ftp://example.com/announce", "", false},
		{"# a comment", "", false},
		{"", "", false},
		{"   ", "", false},
		{"not a url at all", "", false},
	} {
		got, ok := normalizeTracker(tc.input)
		require.Equal(t, tc.ok, ok, "input %q", tc.input)
		if tc.ok {
			require.Equal(t, tc.want, got, "input %q", tc.input)
		}
	}
}

func TestParseFallbackBlock(t *testing.T) {
	fallback := parseTrackerBlock(fallbackTrackers)
	require.NotEmpty(t, fallback)

	seen := make(map[string]bool)
	for _, tracker := range fallback {
		require.False(t, seen[tracker], "duplicate %q", tracker)
		seen[tracker] = true
	}

	require.Equal(t, "udp://tracker.opentrackr.org:1337/announce", fallback[0])
	// Default https ports in the raw block are stripped by normalization.
	require.Contains(t, fallback, "https://tracker.opentrackr.org/announce")
}

func TestGatherMergesSourcesAfterFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			// One new tracker plus a duplicate of a fallback entry.
			fmt.Fprintln(w, "udp://fresh.example.com:1337/announce")
			fmt.Fprintln(w, "udp://tracker.opentrackr.org:1337/announce")
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	saved := trackerSources
	trackerSources = []string{server.URL + "/good", server.URL + "/bad"}
	defer func() { trackerSources = saved }()

	gathered, err := Gather(context.Background(), server.Client())
	require.NoError(t, err)

	fallback := parseTrackerBlock(fallbackTrackers)
	require.Len(t, gathered, len(fallback)+1)
	require.Equal(t, fallback, gathered[:len(fallback)])
	require.Equal(t, "udp://fresh.example.com:1337/announce", gathered[len(fallback)])
}

func TestGatherSurvivesUnreachableSources(t *testing.T) {
	saved := trackerSources
	trackerSources = []string{"http://127.0.0.1:1/unreachable"}
	defer func() { trackerSources = saved }()

	gathered, err := Gather(context.Background(), http.DefaultClient)
	require.NoError(t, err)
	require.Equal(t, parseTrackerBlock(fallbackTrackers), gathered)
}
