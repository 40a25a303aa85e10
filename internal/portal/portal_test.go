package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/portal/hardware/backlight"
	"github.com/temoto/portal/hardware/rtc"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/hardware/wifi"
	"github.com/temoto/portal/helpers"
	"github.com/temoto/portal/internal/extract"
	"github.com/temoto/portal/internal/imagecache"
	"github.com/temoto/portal/internal/platform"
	"github.com/temoto/portal/internal/state"
	"github.com/temoto/portal/log2"
	"golang.org/x/image/bmp"
)

type teleMock struct {
	mu     sync.Mutex
	values [][]interface{}
	errors []error
}

func (self *teleMock) Values(vs []interface{}) {
	self.mu.Lock()
	self.values = append(self.values, vs)
	self.mu.Unlock()
}
func (self *teleMock) Error(e error) {
	self.mu.Lock()
	self.errors = append(self.errors, e)
	self.mu.Unlock()
}
func (self *teleMock) Close() {}

type openerMock struct {
	mu     sync.Mutex
	opened []string
	image  []byte
}

func (self *openerMock) open(name string) (io.ReadCloser, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.opened = append(self.opened, name)
	return ioutil.NopCloser(bytes.NewReader(self.image)), nil
}

type tenv struct {
	p         *Portal
	http      *helpers.MockHTTP
	adapter   *wifi.MockAdapter
	pixel     *status.MockPixel
	restarter *platform.MockRestarter
	clock     *rtc.Mock
	tele      *teleMock
	opener    *openerMock
}

func testBMP(t testing.TB) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 0xff, A: 0xff})
	buf := bytes.NewBuffer(nil)
	require.NoError(t, bmp.Encode(buf, img))
	return buf.Bytes()
}

func httpBody(body string) *helpers.MockHTTP {
	return &helpers.MockHTTP{
		Header: []byte(fmt.Sprintf("HTTP/1.0 200 OK\r\nContent-Length: %d\r\n\r\n", len(body))),
		Body:   []byte(body),
	}
}

func newTestEnv(t testing.TB, config string, mock *helpers.MockHTTP) *tenv {
	log := log2.NewTest(t, log2.LDebug)
	fs := state.NewMockFullReader(map[string]string{"test.hcl": config})
	cfg, err := state.ReadConfig(log, fs, "test.hcl")
	require.NoError(t, err)
	if cfg.Fetch.LocalFile == "" {
		cfg.Fetch.LocalFile = filepath.Join(t.TempDir(), "absent.txt")
	}

	env := &tenv{
		http:      mock,
		adapter:   &wifi.MockAdapter{ConnectAfter: 1},
		pixel:     &status.MockPixel{},
		restarter: &platform.MockRestarter{},
		clock:     &rtc.Mock{},
		tele:      &teleMock{},
		opener:    &openerMock{image: testBMP(t)},
	}
	p := NewPortal(log)
	p.Adapter = env.adapter
	if mock != nil {
		p.Transport = mock
	}
	p.Pixel = env.pixel
	p.Restarter = env.restarter
	p.Clock = env.clock
	p.Tele = env.tele
	p.Opener = env.opener.open
	require.NoError(t, p.Init(context.Background(), cfg))
	env.p = p
	t.Cleanup(func() { assert.NoError(t, p.Close()) })
	return env
}

const weatherJSON = `{"name":"Moscow","main":{"temp":1234,"humidity":87},"weather":[{"icon":"http://x/1.png"}]}`

func TestFetchLocalFile(t *testing.T) {
	t.Parallel()

	config := `
fetch {
	url = "http://api.example/weather"
	path "0" { json = ["main", "temp"] }
	path "1" { json = ["name"] }
}
text "0" { position = [10, 10] }
text "1" { position = [10, 40] }
`
	local := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, ioutil.WriteFile(local, []byte(weatherJSON), 0644))

	// network path
	netEnv := newTestEnv(t, config, httpBody(weatherJSON))
	netValues, err := netEnv.p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://api.example/weather"}, netEnv.http.Requests())
	assert.Equal(t, 1, netEnv.adapter.Probes)

	// local file path, same body
	localEnv := newTestEnv(t, config+fmt.Sprintf("\nfetch { local_file = %q }\n", local), httpBody(weatherJSON))
	localValues, err := localEnv.p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, localEnv.http.Requests())
	assert.Equal(t, 0, localEnv.adapter.Probes)
	assert.Equal(t, 0, localEnv.adapter.Connects)
	assert.Empty(t, localEnv.pixel.Colors())

	assert.Equal(t, netValues, localValues)
	assert.Equal(t, extract.Values{json.Number("1234"), "Moscow"}, localValues)
	for _, env := range []*tenv{netEnv, localEnv} {
		assert.Equal(t, "1,234", env.p.Renderer.Text(0))
		assert.Equal(t, "Moscow", env.p.Renderer.Text(1))
		assert.Equal(t, []interface{}(localValues), env.tele.values[0])
	}
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `fetch { url = "http://api.example/" }`, httpBody("hello"))
	_, err := env.p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []status.Color{status.Connecting, status.NotConnected, status.Fetching, status.Received, status.Off}, env.pixel.Colors())
}

func TestFetchExtract(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		config    string
		body      string
		expect    interface{}
		expectErr func(error) bool
		text0     string
	}
	cases := []Case{
		{"whole-body", ``, "just text", "just text", nil, "just text"},
		{"json-single", `fetch { json_path = ["main", "humidity"] }`, weatherJSON, json.Number("87"), nil, "87"},
		{"json-negative-index", `fetch { json_path = ["weather", "-1", "icon"] }`, weatherJSON, "http://x/1.png", nil, "http://x/1.png"},
		{"regexp", `fetch { regexp = ["temp=(\\d+)"] }`, "temp=1234567 ok", "1234567", nil, "1,234,567"},
		{"json-wins", `fetch {
	json_path = ["name"]
	regexp = ["(\\w+)"]
}`, weatherJSON, "Moscow", nil, "Moscow"},
		{"json-multiple", `fetch {
	path "1" { json = ["main", "humidity"] }
	path "0" { json = ["name"] }
}`, weatherJSON, []interface{}{"Moscow", json.Number("87")}, nil, "Moscow"},
		{"key-not-found", `fetch { json_path = ["main", "pressure"] }`, weatherJSON, nil, extract.IsKeyNotFound, ""},
		{"no-match", `fetch { regexp = ["temp=(\\d+)"] }`, "nothing", nil, extract.IsNoMatch, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, c.config+"\ntext \"0\" { position = [0, 0] }\n", httpBody(c.body))
			values, err := env.p.Fetch(context.Background())
			if c.expectErr != nil {
				require.Error(t, err)
				assert.True(t, c.expectErr(errors.Cause(err)), "err=%v", err)
				assert.Empty(t, env.tele.values)
			} else {
				require.NoError(t, err)
				assert.Equal(t, c.expect, values.Result())
			}
			assert.Equal(t, c.text0, env.p.Renderer.Text(0))
		})
	}
}

func TestFetchParseError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `
fetch { json_path = ["main"] }
text "0" { position = [0, 0] }
`, httpBody("{not json"))
	var called bool
	env.p.OnSuccess = func(extract.Values) { called = true }
	_, err := env.p.Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, "", env.p.Renderer.Text(0))
	assert.Empty(t, env.restarter.Reasons)
}

func TestFetchOutOfMemory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `
fetch { json_path = ["name"] }
memory { limit_kb = 1 }
`, httpBody(weatherJSON))
	_, err := env.p.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, platform.IsOutOfMemory(err), "err=%v", err)
	require.Len(t, env.restarter.Reasons, 1)
	assert.True(t, platform.IsOutOfMemory(env.restarter.Reasons[0]))
}

func TestFetchImage(t *testing.T) {
	t.Parallel()

	const imageSource = "http://img.example/a.png"
	type Case struct {
		name       string
		body       string
		expectOpen func(cacheFile string) []string
	}
	cases := []Case{
		{"key-not-found", `{"name":"x"}`,
			func(string) []string { return []string{"default.bmp", "default.bmp"} }},
		{"not-string", `{"name":"x","img":{"url":1}}`,
			func(string) []string { return []string{"default.bmp", "default.bmp"} }},
		{"found", `{"name":"x","img":"` + imageSource + `"}`,
			func(cacheFile string) []string { return []string{"default.bmp", cacheFile} }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cacheFile := filepath.Join(t.TempDir(), "cache.bmp")
			bmpBody := testBMP(t)
			mock := &helpers.MockHTTP{}
			mock.Fun = func(req *http.Request) (*http.Response, error) {
				b := []byte(c.body)
				if req.URL.Host != "api.example" {
					b = bmpBody
				}
				return &http.Response{
					StatusCode:    http.StatusOK,
					Header:        http.Header{},
					ContentLength: int64(len(b)),
					Body:          ioutil.NopCloser(bytes.NewReader(b)),
					Request:       req,
				}, nil
			}
			env := newTestEnv(t, fmt.Sprintf(`
display { default_background = "default.bmp" }
fetch {
	url = "http://api.example/"
	json_path = ["name"]
	image_json_path = ["img"]
	cache_file = %q
}
text "0" { position = [0, 0] }
`, cacheFile), mock)

			values, err := env.p.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "x", values.Result())
			assert.Equal(t, "x", env.p.Renderer.Text(0))
			assert.Equal(t, c.expectOpen(cacheFile), env.opener.opened)
			if c.name == "found" {
				assert.Equal(t, []string{"http://api.example/", imagecache.DefaultServiceURL + imageSource}, mock.Requests())
				b, err := ioutil.ReadFile(cacheFile)
				require.NoError(t, err)
				assert.Equal(t, bmpBody, b)
			}
		})
	}
}

func TestGetLocalTime(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		location  string
		body      string
		expectURL string
		expect    *rtc.LocalTime
	}
	cases := []Case{
		{"ip", "",
			`{"datetime":"2019-03-01T12:34:56.123456+03:00","day_of_year":60,"day_of_week":5,"dst":false}`,
			"http://worldtimeapi.org/api/ip",
			&rtc.LocalTime{Year: 2019, Month: 3, Day: 1, Hour: 12, Minute: 34, Second: 56, WeekDay: 5, YearDay: 60}},
		{"location", "Europe/Berlin",
			`{"datetime":"2020-07-15T08:00:01.5+02:00","day_of_year":197,"day_of_week":3,"dst":true}`,
			"http://worldtimeapi.org/api/timezone/Europe/Berlin",
			&rtc.LocalTime{Year: 2020, Month: 7, Day: 15, Hour: 8, Minute: 0, Second: 1, WeekDay: 3, YearDay: 197, DST: true}},
		{"malformed-datetime", "",
			`{"datetime":"yesterday","day_of_year":1,"day_of_week":1,"dst":false}`,
			"http://worldtimeapi.org/api/ip", nil},
		{"missing-dst", "",
			`{"datetime":"2019-03-01T12:34:56","day_of_year":60,"day_of_week":5}`,
			"http://worldtimeapi.org/api/ip", nil},
		{"not-json", "", `<html>`, "http://worldtimeapi.org/api/ip", nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, ``, httpBody(c.body))
			lt, err := env.p.GetLocalTime(context.Background(), c.location)
			assert.Equal(t, []string{c.expectURL}, env.http.Requests())
			if c.expect == nil {
				require.Error(t, err)
				assert.Nil(t, env.clock.Last)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *c.expect, lt)
			require.NotNil(t, env.clock.Last)
			assert.Equal(t, *c.expect, *env.clock.Last)
		})
	}
}

func TestShowQR(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, ``, nil)
	scene := env.p.Display.Scene()

	err := env.p.ShowQR("http://example.com/", 33, image.Point{})
	assert.True(t, errors.IsNotValid(err), "err=%v", err)
	assert.Equal(t, 0, scene.Len())

	require.NoError(t, env.p.ShowQR("http://example.com/", 64, image.Point{X: 10, Y: 10}))
	assert.Equal(t, 1, scene.Len())
	require.NoError(t, env.p.ShowQR("http://example.com/other", 96, image.Point{}))
	assert.Equal(t, 1, scene.Len())
	require.NoError(t, env.p.ShowQR("", 0, image.Point{}))
	assert.Equal(t, 0, scene.Len())
}

func TestSetBacklight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, ``, nil)
	err := env.p.SetBacklight(0.5)
	assert.True(t, errors.IsNotSupported(err), "err=%v", err)

	bl := &backlight.Mock{}
	env.p.Backlight = bl
	require.NoError(t, env.p.SetBacklight(1.5))
	assert.Equal(t, 1.0, bl.Value)
	require.NoError(t, env.p.SetBacklight(0.25))
	assert.Equal(t, 0.25, bl.Value)
}

func TestSetTextCaption(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `
text "0" { position = [0, 0] maxlen = 5 }
text "2" { position = [0, 20] color = "#ff0000" }
caption { text = "Weather" position = [0, 200] }
`, nil)
	r := env.p.Renderer
	assert.Equal(t, 3, r.NumSlots())
	// caption only
	assert.Equal(t, 1, env.p.Display.Scene().Len())

	require.NoError(t, env.p.SetText(0, "truncated"))
	assert.Equal(t, "trunc", r.Text(0))
	// slot 1 has no config, inert
	require.NoError(t, env.p.SetText(1, "hidden"))
	assert.Equal(t, "", r.Text(1))
	require.NoError(t, env.p.SetText(2, "red"))
	assert.Equal(t, "red", r.Text(2))
	assert.Error(t, env.p.SetText(3, "no slot"))
	assert.Equal(t, 3, env.p.Display.Scene().Len())
	assert.True(t, env.p.PreloadFont("") > 0)
}

func TestNeoStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, ``, nil)
	env.p.NeoStatus(status.Color{R: 1, G: 2, B: 3})
	assert.Equal(t, []status.Color{{R: 1, G: 2, B: 3}}, env.pixel.Colors())
}

func TestTouchscreenNotConfigured(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, ``, nil)
	_, err := env.p.Touchscreen()
	assert.True(t, errors.IsNotSupported(err), "err=%v", err)
}

func TestRun(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `fetch { url = "http://api.example/" interval_sec = 3600 }`, httpBody("tick"))
	n := 0
	env.p.OnSuccess = func(vs extract.Values) {
		n++
		env.p.Stop()
	}
	require.NoError(t, env.p.Run(context.Background()))
	assert.Equal(t, 1, n)
}

func TestRunAdapterNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `
network { init_retries = 2 init_backoff_ms = 1 }
fetch { url = "http://api.example/" }
`, httpBody("tick"))
	env.adapter.ProbeFailures = 5
	err := env.p.Run(context.Background())
	assert.Equal(t, wifi.ErrAdapterNotFound, errors.Cause(err))
	assert.Equal(t, 2, env.adapter.Probes)
	assert.NotEmpty(t, env.tele.errors)
}

func TestPersistRestore(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	config := fmt.Sprintf(`
fetch { json_path = ["name"] }
text "0" { position = [0, 0] }
persist { root = %q }
`, root)

	env1 := newTestEnv(t, config, httpBody(weatherJSON))
	_, err := env1.p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Moscow", env1.p.Renderer.Text(0))

	env2 := newTestEnv(t, config, nil)
	assert.Equal(t, "Moscow", env2.p.Renderer.Text(0))
	assert.Equal(t, []interface{}{"Moscow"}, env2.p.LastValues.Values)
}

func TestGetPortal(t *testing.T) {
	t.Parallel()
	p := NewPortal(log2.NewTest(t, log2.LDebug))
	ctx := p.ContextWith(context.Background())
	assert.Equal(t, p, GetPortal(ctx))
	assert.Panics(t, func() { GetPortal(context.Background()) })
}
