package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPingSendsExpectedQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","response":"https://example.test/server","errors":[]}`))
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Ping(context.Background(), srv.URL, Request{
		Port: 25565, Max: 32, Name: "Test", Public: true, Salt: "abc", Users: 3,
	})
	require.NoError(t, err)
	require.True(t, resp.Succeeded())
	require.Equal(t, "https://example.test/server", resp.Response)

	q := srv.URL
	_ = q
	require.Contains(t, gotQuery, "port=25565")
	require.Contains(t, gotQuery, "max=32")
	require.Contains(t, gotQuery, "version=7")
	require.Contains(t, gotQuery, "json=true")
	require.Contains(t, gotQuery, "salt=abc")
}

func TestPingReportsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","response":"","errors":[["bad salt"]]}`))
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Ping(context.Background(), srv.URL, Request{})
	require.NoError(t, err)
	require.False(t, resp.Succeeded())
	require.Equal(t, [][]string{{"bad salt"}}, resp.Errors)
}

func TestPingErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Ping(context.Background(), srv.URL, Request{})
	require.Error(t, err)
}
