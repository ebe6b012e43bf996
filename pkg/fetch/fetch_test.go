package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHead(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Length", "12345")
		w.Header().Set("Content-Disposition", `attachment; filename="My File.iso"`)
	}))
	defer server.Close()

	meta, err := Head(context.Background(), server.Client(), server.URL+"/ignored")
	require.NoError(t, err)
	require.Equal(t, http.MethodHead, gotMethod)
	require.Equal(t, uint64(12345), meta.ContentLength)
	require.Equal(t, "My_File.iso", meta.Filename)
	require.Equal(t, server.URL+"/ignored", meta.URL)
}

func TestHeadFallsBackToRangedGet(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Range", "bytes 0-0/5000")
		w.Header().Set("Content-Length", "1")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer server.Close()

	meta, err := Head(context.Background(), server.Client(), server.URL+"/data.bin")
	require.NoError(t, err)
	require.Equal(t, "bytes=0-0", gotRange)
	// The partial response's Content-Length covers one byte; the total
	// comes from Content-Range.
	require.Equal(t, uint64(5000), meta.ContentLength)
	require.Equal(t, "data.bin", meta.Filename)
}

func TestContentLengthMissing(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	_, ok := contentLength(resp)
	require.False(t, ok)
}

func TestHeadErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Head(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
}

func TestParseContentRangeTotal(t *testing.T) {
	for _, tc := range []struct {
		value string
		total uint64
		ok    bool
	}{
		{"bytes 0-0/5000", 5000, true},
		{"Bytes 0-499/1000", 1000, true},
		{"bytes 0-0/*", 0, false},
		{"items 0-0/5000", 0, false},
		{"", 0, false},
		{"bytes", 0, false},
	} {
		total, ok := parseContentRangeTotal(tc.value)
		require.Equal(t, tc.ok, ok, "value %q", tc.value)
		if tc.ok {
			require.Equal(t, tc.total, total, "value %q", tc.value)
		}
	}
}

func TestInferFilename(t *testing.T) {
	for _, tc := range []struct {
		url         string
		disposition string
		want        string
	}{
		{"http://example.com/files/archive.tar.gz", "", "archive.tar.gz"},
		{"http://example.com/files/", "", "files"},
		{"http://example.com/", "", "example.com"},
		{"http://example.com/x", `attachment; filename="quoted name.bin"`, "quoted_name.bin"},
		{"http://example.com/x", "attachment; filename*=UTF-8''na%C3%AFve%20file.txt", "na_ve_file.txt"},
	} {
		got, err := inferFilename(tc.url, tc.disposition)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "url %q disposition %q", tc.url, tc.disposition)
	}
}

func TestSanitizeFilename(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
	}{
		{"plain-name_1.bin", "plain-name_1.bin"},
		{"..hidden", "hidden"},
		{"...", "download"},
		{"", "download"},
		{"  spaced name  ", "spaced_name"},
		{"a/b\\c", "a_b_c"},
		{"naïve.txt", "na_ve.txt"},
		{".gitignore", "gitignore"},
	} {
		require.Equal(t, tc.want, SanitizeFilename(tc.input), "input %q", tc.input)
	}
}

func TestStream(t *testing.T) {
	payload := []byte("stream me please")
	var gotEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Write(payload)
	}))
	defer server.Close()

	body, err := Stream(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "identity", gotEncoding)
	require.Equal(t, payload, data)
}

func TestStreamBoundToCallerContext(t *testing.T) {
	// The body carries no deadline of its own; only the caller's context
	// ends a read early.
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	body, err := Stream(ctx, server.Client(), server.URL)
	require.NoError(t, err)
	defer body.Close()

	cancel()
	_, err = io.ReadAll(body)
	require.Error(t, err)
	require.ErrorContains(t, err, "context canceled")
}

func TestStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := Stream(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
}

func TestParseSourceURL(t *testing.T) {
	for _, tc := range []struct {
		input string
		ok    bool
	}{
		{"http://example.com/x", true},
		{"https://example.com/x", true},
		{"udp://example.com/x", false},
		{"ftp://example.com/x", false},
		{"example.com/x", false},
	} {
		_, err := ParseSourceURL(tc.input)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.input)
		} else {
			require.Error(t, err, "input %q", tc.input)
		}
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Header().Set("Content-Length", "1")
	}))
	defer server.Close()

	client := NewClient("torseed/0.0.0-test")
	_, err := Head(context.Background(), client, server.URL+"/f.bin")
	require.NoError(t, err)
	require.Equal(t, "torseed/0.0.0-test", got)
}
