package wifi

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalResponse(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "portal-wifi-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "local.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte(`[1, "two", {"x": 3.5}]`), 0644))

	r, err := NewLocalResponse(path)
	require.NoError(t, err)
	assert.Equal(t, 200, r.StatusCode)
	assert.Equal(t, int64(22), r.ContentLength)
	doc, err := r.JSON()
	require.NoError(t, err)
	assert.Len(t, doc, 3)

	_, err = NewLocalResponse(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestResponseMalformedJSON(t *testing.T) {
	t.Parallel()

	r := NewBytesResponse([]byte(`{"broken":`))
	_, err := r.JSON()
	assert.Error(t, err)
	text, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, `{"broken":`, text)
}

func TestChunkLimit(t *testing.T) {
	t.Parallel()

	r := NewBytesResponse([]byte("0123456789"))
	cr := r.Chunks(4)
	b, err := cr.Next(3)
	require.NoError(t, err)
	assert.Equal(t, "012", string(b))
	b, err = cr.Next(0)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(b))
	b, err = cr.Next(0)
	require.NoError(t, err)
	assert.Equal(t, "789", string(b))
	_, err = cr.Next(0)
	assert.Equal(t, io.EOF, err)
}
