package wifi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/helpers"
	"github.com/temoto/portal/log2"
)

func newTestSession(t testing.TB, a Adapter, mock *helpers.MockHTTP) (*Session, *status.MockPixel) {
	log := log2.NewTest(t, log2.LDebug)
	px := &status.MockPixel{}
	config := Config{
		ConnectBackoff: helpers.Backoff{Max: time.Millisecond},
		InitBackoff:    time.Millisecond,
	}
	if mock != nil {
		config.Transport = mock
	}
	return NewSession(a, Credentials{SSID: "home", Password: "secret"}, status.NewIndicator(px, log), config, log), px
}

func TestInit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		failures   int
		expectErr  bool
		expectProb int
		expectRst  int
	}{
		{"first", 0, false, 1, 0},
		{"third", 2, false, 3, 2},
		{"never", 5, true, 3, 3},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			a := &MockAdapter{ProbeFailures: c.failures}
			s, _ := newTestSession(t, a, nil)
			err := s.Init(context.Background())
			if c.expectErr {
				require.Error(t, err)
				assert.Equal(t, ErrAdapterNotFound, errors.Cause(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, c.expectProb, a.Probes)
			assert.Equal(t, c.expectRst, a.Resets)
		})
	}
}

func TestEnsureConnectedStatus(t *testing.T) {
	t.Parallel()

	a := &MockAdapter{ConnectAfter: 3, ConnectErr: fmt.Errorf("auth timeout")}
	s, px := newTestSession(t, a, nil)
	assert.Equal(t, StateDisconnected, s.State())
	require.NoError(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, 3, a.Connects)
	assert.Equal(t, []status.Color{status.Connecting, status.NotConnected, status.NotConnected, status.NotConnected}, px.Colors())

	// already connected: only the connecting signal
	px.Reset()
	require.NoError(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, []status.Color{status.Connecting}, px.Colors())
	assert.Equal(t, 3, a.Connects)
}

func TestEnsureConnectedCancel(t *testing.T) {
	t.Parallel()

	a := &MockAdapter{ConnectAfter: 1 << 30, ConnectErr: fmt.Errorf("no AP")}
	s, _ := newTestSession(t, a, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.EnsureConnected(ctx)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestGet(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{Body: []byte(`{"main":{"temp":1234}}`)}
	s, _ := newTestSession(t, Wired{}, mock)
	r, err := s.Get(context.Background(), "http://example.test/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	doc, err := r.JSON()
	require.NoError(t, err)
	temp := doc.(map[string]interface{})["main"].(map[string]interface{})["temp"]
	assert.Equal(t, "1234", fmt.Sprint(temp))
	assert.NoError(t, r.Close())
	text, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, `{"main":{"temp":1234}}`, text)
	assert.Equal(t, []string{"http://example.test/data"}, mock.Requests())
}

func TestGetTransportError(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{Err: fmt.Errorf("connection refused")}
	s, _ := newTestSession(t, Wired{}, mock)
	_, err := s.Get(context.Background(), "http://example.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetStreamChunks(t *testing.T) {
	t.Parallel()

	body := make([]byte, 25000)
	for i := range body {
		body[i] = byte(i)
	}
	mock := &helpers.MockHTTP{Header: []byte("HTTP/1.0 200 OK\r\nContent-Length: 25000\r\n\r\n"), Body: body}
	s, _ := newTestSession(t, Wired{}, mock)
	r, err := s.GetStream(context.Background(), "http://example.test/img")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(25000), r.ContentLength)

	cr := r.Chunks(12000)
	sizes := []int{}
	got := []byte{}
	for {
		chunk, err := cr.Next(0)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}
	assert.Equal(t, []int{12000, 12000, 1000}, sizes)
	assert.Equal(t, body, got)
	_, err = cr.Next(0)
	assert.Equal(t, io.EOF, err)
}
