package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/melih/blitzkrieg/internal/core/provision"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, l.Addr().(*net.TCPAddr).Port
}

func TestTCPInUse(t *testing.T) {
	_, port := listen(t)
	p := TCP{Host: "127.0.0.1", Timeout: time.Second}

	require.True(t, p.InUse(port))

	ok, err := p.Accepting(port)(context.Background(), "w-postgres")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFindAvailablePortNeverReturnsListeningPort(t *testing.T) {
	_, port := listen(t)
	alloc := provision.NewPortAllocator(TCP{Host: "127.0.0.1", Timeout: time.Second}, 50)

	got, err := alloc.FindAvailablePort(port)
	require.NoError(t, err)
	require.NotEqual(t, port, got)
	require.Greater(t, got, port)
}

func TestTCPClosedPort(t *testing.T) {
	l, port := listen(t)
	l.Close()

	p := TCP{Host: "127.0.0.1", Timeout: 200 * time.Millisecond}
	require.False(t, p.InUse(port))

	ok, err := p.Accepting(port)(context.Background(), "w-postgres")
	require.Error(t, err)
	require.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/misc/ping" || unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("PING"))
	}))
	defer srv.Close()

	ready := HTTPStatus(srv.URL+"/misc/ping", http.StatusOK, time.Second)
	ok, err := ready(context.Background(), "w-pgadmin")
	require.NoError(t, err)
	require.True(t, ok)

	unhealthy.Store(true)
	ok, err = ready(context.Background(), "w-pgadmin")
	require.Error(t, err)
	require.False(t, ok)
}

func TestHTTPStatusUnreachable(t *testing.T) {
	l, port := listen(t)
	l.Close()
	ready := HTTPStatus(fmt.Sprintf("http://127.0.0.1:%d/", port), http.StatusOK, 200*time.Millisecond)

	ok, err := ready(context.Background(), "w-pgadmin")
	require.Error(t, err)
	require.False(t, ok)
}
