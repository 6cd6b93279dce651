package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
)

func TestHTTPClientGetSendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, "Id\n1\n")
	}))
	defer srv.Close()

	cfg := config.NewConfig("test").HTTP
	cfg.AccessToken = "secret"
	cfg.Headers["X-Sfdc-Job"] = "750xx"

	c := NewHTTPClient(cfg, zaptest.NewLogger(t))
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Id\n1\n", string(body))

	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.Equal(t, "750xx", got.Get("X-Sfdc-Job"))
	assert.Equal(t, "gzip, deflate, zstd", got.Get("Accept-Encoding"))
	assert.Equal(t, "nebula-bulk/1.0", got.Get("User-Agent"))
}

func TestHTTPClientRedirectAuthorization(t *testing.T) {
	var targetAuth string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		targetAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "Id\n1\n")
	}))
	defer target.Close()

	// Same port, different host name: the redirect leaves the origin's host.
	crossHost := strings.Replace(target.URL, "127.0.0.1", "localhost", 1)

	var sameHostAuth string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cross":
			http.Redirect(w, r, crossHost+"/object", http.StatusFound)
		case "/same":
			http.Redirect(w, r, "/final", http.StatusFound)
		case "/final":
			sameHostAuth = r.Header.Get("Authorization")
			_, _ = io.WriteString(w, "Id\n1\n")
		}
	}))
	defer origin.Close()
	require.Contains(t, origin.URL, "127.0.0.1")

	cfg := config.NewConfig("test").HTTP
	cfg.AccessToken = "secret"
	c := NewHTTPClient(cfg, zaptest.NewLogger(t))
	defer c.Close()

	t.Run("cross host", func(t *testing.T) {
		resp, err := c.Get(context.Background(), origin.URL+"/cross")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, targetAuth)
	})

	t.Run("same host", func(t *testing.T) {
		resp, err := c.Get(context.Background(), origin.URL+"/same")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Bearer secret", sameHostAuth)
	})
}

func TestHTTPClientNoTokenNoAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewHTTPClient(config.NewConfig("test").HTTP, nil)
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, auth)
}

func TestHTTPClientLeavesCompressedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte{0x1f, 0x8b})
	}))
	defer srv.Close()

	c := NewHTTPClient(config.NewConfig("test").HTTP, nil)
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, []byte{0x1f, 0x8b}, body)
}

func TestHTTPClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(config.NewConfig("test").HTTP, nil)
	_, err := c.Get(context.Background(), url)
	require.Error(t, err)
}
