package display

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/portal/log2"
	"golang.org/x/image/bmp"
)

type fileEvents struct {
	mu     sync.Mutex
	events []string
	files  map[string][]byte
}

type trackedFile struct {
	*bytes.Reader
	name string
	ev   *fileEvents
}

func (self *trackedFile) Close() error {
	self.ev.add("close " + self.name)
	return nil
}

func (self *fileEvents) add(s string) {
	self.mu.Lock()
	self.events = append(self.events, s)
	self.mu.Unlock()
}

func (self *fileEvents) open(name string) (io.ReadCloser, error) {
	b, ok := self.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	self.add("open " + name)
	return &trackedFile{Reader: bytes.NewReader(b), name: name, ev: self}, nil
}

func testBMP(t testing.TB, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func TestBackgroundSwap(t *testing.T) {
	t.Parallel()

	ev := &fileEvents{files: map[string][]byte{
		"a.bmp": testBMP(t, color.White),
		"b.bmp": testBMP(t, color.RGBA{0xff, 0, 0, 0xff}),
		"junk":  []byte("not an image"),
	}}
	d := NewMock(image.Point{X: 4, Y: 4})
	scene := d.Scene()
	label := scene.Append(Empty{})
	bg := NewBackground(scene, ev.open, log2.NewTest(t, log2.LDebug))

	require.NoError(t, bg.Set("a.bmp"))
	require.NoError(t, bg.Set("b.bmp"))
	assert.Equal(t, []string{"open a.bmp", "close a.bmp", "open b.bmp"}, ev.events)
	assert.Equal(t, 2, scene.Len())
	assert.Equal(t, 0, scene.Index(bg.Handle()))
	assert.Equal(t, 1, scene.Index(label))

	require.NoError(t, d.Refresh())
	assert.Equal(t, color.RGBA{0xff, 0, 0, 0xff}, d.Image().RGBAAt(2, 2))

	require.NoError(t, bg.Set(""))
	assert.Equal(t, 1, scene.Len())
	assert.Equal(t, Handle(0), bg.Handle())
	assert.Equal(t, "close b.bmp", ev.events[len(ev.events)-1])

	assert.Error(t, bg.Set("missing.bmp"))
	assert.Error(t, bg.Set("junk"))
	assert.Equal(t, "close junk", ev.events[len(ev.events)-1])
	assert.Equal(t, 1, scene.Len())
	assert.NoError(t, bg.Close())
}
