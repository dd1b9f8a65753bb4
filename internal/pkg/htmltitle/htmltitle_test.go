package htmltitle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servePage(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTitleTag(t *testing.T) {
	srv := servePage(t, `<html><head><title>  My Page  </title></head><body></body></html>`)

	f := NewFetcher(time.Second)
	title, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "My Page", title)
}

func TestFetchPrefersOGTitle(t *testing.T) {
	srv := servePage(t, `<html><head>
		<title>Plain title</title>
		<meta property="og:title" content="Social title"/>
	</head><body></body></html>`)

	f := NewFetcher(time.Second)
	title, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Social title", title)
}

func TestFetchNoTitle(t *testing.T) {
	srv := servePage(t, `<html><head></head><body><p>nothing here</p></body></html>`)

	f := NewFetcher(time.Second)
	title, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, title)
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
