package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/portal/hardware/display"
	"github.com/temoto/portal/log2"
	"golang.org/x/image/font/basicfont"
)

type marker string

func (marker) Draw(draw.Image) {}

func pt(x, y int) *image.Point { return &image.Point{X: x, Y: y} }

func newTestRenderer(t testing.TB, slots ...Slot) (*Renderer, *display.Scene) {
	scene := display.NewScene()
	face, err := LoadFont("", 0)
	require.NoError(t, err)
	return NewRenderer(scene, face, slots, log2.NewTest(t, log2.LDebug)), scene
}

func TestRenderFormats(t *testing.T) {
	t.Parallel()

	r, scene := newTestRenderer(t, Slot{Position: pt(10, 10), Color: color.White})
	require.NoError(t, r.Render(0, "1234"))
	assert.Equal(t, "1,234", r.Text(0))
	assert.Equal(t, 1, scene.Len())
}

func TestRenderWrapTruncate(t *testing.T) {
	t.Parallel()

	r, _ := newTestRenderer(t, Slot{Position: pt(0, 0), Wrap: 10, MaxLen: 15})
	require.NoError(t, r.Render(0, "the quick brown fox jumps"))
	assert.Equal(t, "the quick\nbrown", r.Text(0))
}

func TestSetTextPreservesOrder(t *testing.T) {
	t.Parallel()

	r, scene := newTestRenderer(t, Slot{Position: pt(0, 0)}, Slot{Position: pt(0, 20)})
	scene.Append(marker("bg"))
	require.NoError(t, r.SetText(0, "first"))
	scene.Append(marker("qr"))
	require.NoError(t, r.SetText(1, "second"))
	scene.Append(marker("top"))
	before := scene.Len()

	require.NoError(t, r.SetText(0, "updated"))
	els := scene.Elements()
	require.Equal(t, before, len(els))
	assert.Equal(t, marker("bg"), els[0])
	assert.Equal(t, "updated", els[1].(*display.Label).Text)
	assert.Equal(t, marker("qr"), els[2])
	assert.Equal(t, "second", els[3].(*display.Label).Text)
	assert.Equal(t, marker("top"), els[4])
}

func TestSetTextInert(t *testing.T) {
	t.Parallel()

	r, scene := newTestRenderer(t, Slot{}, Slot{Position: pt(1, 1)})
	require.NoError(t, r.SetText(0, "nowhere"))
	assert.Equal(t, 0, scene.Len())
	assert.Equal(t, "", r.Text(0))

	// empty text does not create slot
	require.NoError(t, r.SetText(1, ""))
	assert.Equal(t, 0, scene.Len())

	assert.Error(t, r.SetText(2, "x"))
	assert.Error(t, r.SetText(-1, "x"))

	disabled := NewRenderer(scene, nil, []Slot{{Position: pt(0, 0)}}, nil)
	require.NoError(t, disabled.SetText(0, "x"))
	assert.Equal(t, 0, scene.Len())
	assert.Equal(t, 0, disabled.PreloadFont(""))
}

func TestSetTextRecreatesRemoved(t *testing.T) {
	t.Parallel()

	r, scene := newTestRenderer(t, Slot{Position: pt(0, 0)})
	require.NoError(t, r.SetText(0, "a"))
	els := scene.Elements()
	require.Len(t, els, 1)
	scene.Remove(display.Handle(1))
	require.NoError(t, r.SetText(0, "b"))
	assert.Equal(t, 1, scene.Len())
	assert.Equal(t, "b", r.Text(0))
}

func TestCaption(t *testing.T) {
	t.Parallel()

	r, scene := newTestRenderer(t)
	r.SetCaption("no font", pt(0, 0), color.White)
	assert.Equal(t, 0, scene.Len())

	r.SetCaptionFont(basicfont.Face7x13)
	r.SetCaption("", pt(0, 0), color.White)
	r.SetCaption("no position", nil, color.White)
	assert.Equal(t, 0, scene.Len())

	r.SetCaption("Weather", pt(5, 220), color.White)
	scene.Append(marker("over"))
	r.SetCaption("Forecast", pt(5, 220), color.White)
	els := scene.Elements()
	require.Len(t, els, 2)
	assert.Equal(t, "Forecast", els[0].(*display.Label).Text)
}

func TestPreloadFont(t *testing.T) {
	t.Parallel()

	r, _ := newTestRenderer(t, Slot{})
	assert.Equal(t, len([]rune(DefaultGlyphs)), r.PreloadFont(""))
	assert.Equal(t, 3, r.PreloadFont("abc"))
}
