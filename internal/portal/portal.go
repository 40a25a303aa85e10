// Package portal wires board peripherals and runs the fetch and render pipeline.
// Portal is not safe for concurrent Fetch calls.
package portal

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/portal/hardware/audio"
	"github.com/temoto/portal/hardware/backlight"
	"github.com/temoto/portal/hardware/display"
	"github.com/temoto/portal/hardware/rtc"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/hardware/touch"
	"github.com/temoto/portal/hardware/wifi"
	"github.com/temoto/portal/helpers"
	"github.com/temoto/portal/internal/extract"
	"github.com/temoto/portal/internal/imagecache"
	"github.com/temoto/portal/internal/platform"
	"github.com/temoto/portal/internal/render"
	"github.com/temoto/portal/internal/state"
	"github.com/temoto/portal/internal/state/persist"
	"github.com/temoto/portal/internal/tele"
	"github.com/temoto/portal/log2"
	"golang.org/x/image/font"
)

const (
	DefaultLocalFile       = "local.txt"
	DefaultTimeServiceURL  = "http://worldtimeapi.org/api/"
	DefaultFetchInterval   = 60 * time.Second
	DefaultJSONOverhead    = 8
	DefaultNetworkTimeout  = 30 * time.Second
	DefaultInitBackoff     = 1 * time.Second
	DefaultPersistTeleName = "portal-tele"
)

var DefaultSize = image.Point{X: 320, Y: 240}

const ContextKey = "run/portal"

func GetPortal(ctx context.Context) *Portal {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if p, ok := v.(*Portal); ok {
		return p
	}
	panic(fmt.Sprintf("context['%s'] expected type *Portal actual=%#v", ContextKey, v))
}

// Portal fields set before Init are kept, Init fills the rest from config.
type Portal struct { //nolint:maligned
	Alive  *alive.Alive
	Config *state.Config
	Log    *log2.Log
	Tele   tele.Teler

	// Hardware, nil means build from config.
	Adapter   wifi.Adapter
	Transport http.RoundTripper
	Pixel     status.Pixel
	Display   *display.Display
	Opener    display.Opener
	Backlight backlight.Backlight
	Clock     rtc.Clock
	Restarter platform.Restarter
	Player    *audio.Player
	Touch     *touch.Touchscreen

	// OnSuccess is called with values of every successful Fetch.
	OnSuccess func(extract.Values)

	Status     *status.Indicator
	Net        *wifi.Session
	Images     *imagecache.Cache
	Renderer   *render.Renderer
	Background *display.Background
	Extractor  extract.Extractor
	Budget     *platform.Budget
	Persist    persist.Persist
	LastValues persist.LastValues

	lk            sync.Mutex
	closeOnce     sync.Once
	closeErr      error
	netReady      bool
	useLocal      bool
	localFile     string
	imagePath     extract.Path
	jsonOverhead  int
	qrHandle      display.Handle
	timeService   string
	fetchInterval time.Duration
}

func NewPortal(log *log2.Log) *Portal {
	return &Portal{
		Alive: alive.NewAlive(),
		Log:   log,
	}
}

func (self *Portal) ContextWith(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, log2.ContextKey, self.Log)
	return context.WithValue(ctx, ContextKey, self)
}

// If `Init` fails, consider `Portal` is in broken state.
func (self *Portal) Init(ctx context.Context, cfg *state.Config) error {
	self.Config = cfg
	if self.Alive == nil {
		self.Alive = alive.NewAlive()
	}
	if cfg.Debug {
		self.Log.SetLevel(log2.LDebug)
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if self.Tele == nil {
		if cfg.Tele.PersistPath == "" {
			root := cfg.Persist.Root
			if root == "" {
				root = os.TempDir()
			}
			cfg.Tele.PersistPath = filepath.Join(root, DefaultPersistTeleName)
		}
		t := tele.New()
		if err := t.Init(ctx, self.Log, cfg.Tele); err != nil {
			return errors.Annotate(err, "tele init")
		}
		self.Tele = t
	}
	self.Log.SetErrorFunc(self.Tele.Error)

	errs := make([]error, 0)
	errs = append(errs, self.initStatus()...)
	errs = append(errs, self.initDisplay()...)
	errs = append(errs, self.initPlatform()...)
	errs = append(errs, self.initNetwork()...)
	errs = append(errs, self.initFetch()...)
	errs = append(errs, self.initText()...)
	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}

	if cfg.Display.DefaultBackground != "" {
		if err := self.SetBackground(cfg.Display.DefaultBackground, image.Point{}); err != nil {
			self.Log.Errorf("default background: %v", err)
		}
	}
	self.restoreValues()
	return nil
}

func (self *Portal) MustInit(ctx context.Context, cfg *state.Config) {
	if err := self.Init(ctx, cfg); err != nil {
		self.Log.Fatal(errors.ErrorStack(err))
	}
}

// Stop makes Run return after current Fetch.
func (self *Portal) Stop() { self.Alive.Stop() }

// Close stops Run and releases hardware. Repeated calls return the first result.
func (self *Portal) Close() error {
	self.closeOnce.Do(func() {
		self.Alive.Stop()
		self.Alive.Wait()
		errs := make([]error, 0, 3)
		if self.Touch != nil {
			errs = append(errs, self.Touch.Close())
		}
		if self.Background != nil {
			errs = append(errs, self.Background.Close())
		}
		if self.Display != nil {
			errs = append(errs, self.Display.Close())
		}
		if self.Tele != nil {
			self.Tele.Close()
		}
		self.closeErr = helpers.FoldErrors(errs)
	})
	return self.closeErr
}

func (self *Portal) initStatus() []error {
	cfg := &self.Config.Status
	var errs []error
	if self.Pixel == nil && cfg.PinRed != "" {
		px, err := status.NewGpioPixel(cfg.PinRed, cfg.PinGreen, cfg.PinBlue, cfg.Brightness)
		if err != nil {
			errs = append(errs, errors.Annotate(err, "config: status"))
		} else {
			self.Pixel = px
		}
	}
	self.Status = status.NewIndicator(self.Pixel, self.Log)
	return errs
}

func (self *Portal) initDisplay() []error {
	cfg := &self.Config.Display
	var errs []error
	if self.Display == nil {
		if cfg.Framebuffer != "" {
			d, err := display.NewFb(cfg.Framebuffer)
			if err != nil {
				errs = append(errs, errors.Annotatef(err, "config: display.framebuffer=%s", cfg.Framebuffer))
			}
			self.Display = d
		}
		if self.Display == nil {
			size := DefaultSize
			if cfg.Width > 0 && cfg.Height > 0 {
				size = image.Point{X: cfg.Width, Y: cfg.Height}
			}
			self.Log.Infof("display framebuffer not configured, drawing offscreen %v", size)
			self.Display = display.NewMock(size)
		}
	}
	if self.Opener == nil {
		self.Opener = display.OsOpener
	}
	self.Background = display.NewBackground(self.Display.Scene(), self.Opener, self.Log)

	if self.Backlight == nil {
		switch {
		case cfg.BacklightPin != "":
			b, err := backlight.NewPin(cfg.BacklightPin)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "config: display.backlight_pin"))
			} else {
				self.Backlight = b
			}
		case cfg.BacklightSysfs != "":
			b, err := backlight.NewSysfs(cfg.BacklightSysfs)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "config: display.backlight_sysfs"))
			} else {
				self.Backlight = b
			}
		}
	}
	return errs
}

func (self *Portal) initPlatform() []error {
	cfg := self.Config
	var errs []error
	if self.Restarter == nil {
		r, err := platform.NewRestarter(cfg.Restart.Mode, self.Log)
		if err != nil {
			errs = append(errs, errors.Annotate(err, "config: restart"))
		}
		self.Restarter = r
	}
	if self.Budget == nil {
		self.Budget = &platform.Budget{Limit: uint64(cfg.Memory.LimitKB) * 1024}
	}
	self.jsonOverhead = cfg.Memory.JSONOverhead
	if self.jsonOverhead <= 0 {
		self.jsonOverhead = DefaultJSONOverhead
	}
	if self.Clock == nil {
		var loc *time.Location
		if cfg.Time.Location != "" {
			var err error
			if loc, err = time.LoadLocation(cfg.Time.Location); err != nil {
				errs = append(errs, errors.Annotatef(err, "config: time.location=%s", cfg.Time.Location))
			}
		}
		self.Clock = rtc.System{Location: loc}
	}
	self.timeService = cfg.Time.ServiceURL
	if self.timeService == "" {
		self.timeService = DefaultTimeServiceURL
	}

	if err := self.Persist.Init("values", &self.LastValues, cfg.Persist.Root, cfg.Persist.Root != "", self.Log); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (self *Portal) initNetwork() []error {
	cfg := &self.Config.Network
	if self.Adapter == nil {
		a, err := wifi.NewAdapter(cfg.Adapter, cfg.Interface)
		if err != nil {
			return []error{errors.Annotate(err, "config: network.adapter")}
		}
		self.Adapter = a
	}
	creds := wifi.Credentials{SSID: cfg.SSID, Password: cfg.Password}
	self.Net = wifi.NewSession(self.Adapter, creds, self.Status, wifi.Config{
		InitRetries: cfg.InitRetries,
		InitBackoff: helpers.IntMillisecondDefault(cfg.InitBackoffMs, DefaultInitBackoff),
		Timeout:     helpers.IntSecondDefault(cfg.TimeoutSec, DefaultNetworkTimeout),
		Transport:   self.Transport,
	}, self.Log)
	return nil
}

func (self *Portal) initFetch() []error {
	cfg := &self.Config.Fetch
	var errs []error

	self.localFile = cfg.LocalFile
	if self.localFile == "" {
		self.localFile = DefaultLocalFile
	}
	self.useLocal = helpers.FileExists(self.localFile)
	self.fetchInterval = helpers.IntSecondDefault(cfg.IntervalSec, DefaultFetchInterval)

	switch {
	case len(cfg.JSONPath) != 0:
		self.Extractor.Paths = extract.Single(extract.ParsePath(cfg.JSONPath))
	case len(cfg.Paths) != 0:
		ps := make([]extract.Path, len(cfg.Paths))
		for i, pc := range cfg.Paths {
			ps[i] = extract.ParsePath(pc.JSON)
		}
		self.Extractor.Paths = extract.Multiple(ps)
	}
	patterns, err := extract.CompilePatterns(cfg.Regexp)
	if err != nil {
		errs = append(errs, errors.Annotate(err, "config: fetch.regexp"))
	}
	self.Extractor.Patterns = patterns
	if !self.Extractor.Paths.IsZero() && len(patterns) != 0 {
		self.Log.Warningf("config: fetch json path and regexp both set, regexp is ignored")
	}
	self.imagePath = extract.ParsePath(cfg.ImageJSONPath)

	var position image.Point
	if p, err := pointConfig(cfg.ImagePosition); err != nil {
		errs = append(errs, errors.Annotate(err, "config: fetch.image_position"))
	} else if p != nil {
		position = *p
	}
	serviceURL := cfg.ImageService
	if len(cfg.ImageResize) != 0 {
		size, err := pointConfig(cfg.ImageResize)
		if err != nil {
			errs = append(errs, errors.Annotate(err, "config: fetch.image_resize"))
		} else {
			if serviceURL == "" {
				serviceURL = imagecache.DefaultServiceURL
			}
			serviceURL = imagecache.ResizeServiceURL(serviceURL, *size)
		}
	}
	self.Images = imagecache.New(imagecache.Config{
		ServiceURL:        serviceURL,
		CacheFile:         cfg.CacheFile,
		DefaultBackground: self.Config.Display.DefaultBackground,
		Position:          position,
		Debug:             self.Config.Debug,
	}, portalStreamer{self}, self.Status, self.setBackground, self.Log)
	return errs
}

func (self *Portal) initText() []error {
	var errs []error
	faces := make(map[string]font.Face)
	loadFont := func(path string, size float64) (font.Face, error) {
		key := fmt.Sprintf("%s:%v", path, size)
		if f, ok := faces[key]; ok {
			return f, nil
		}
		f, err := render.LoadFont(path, size)
		if err == nil {
			faces[key] = f
		}
		return f, err
	}

	var slots []render.Slot
	if n := len(self.Config.Texts); n != 0 {
		// sorted by index in config validation
		slots = make([]render.Slot, self.Config.Texts[n-1].Index()+1)
	}
	for _, tc := range self.Config.Texts {
		slot := &slots[tc.Index()]
		pos, err := pointConfig(tc.Position)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "config: text %s position", tc.Name))
			continue
		}
		slot.Position = pos
		slot.Wrap = tc.Wrap
		slot.MaxLen = tc.MaxLen
		if slot.Color, err = colorConfig(tc.Color); err != nil {
			errs = append(errs, errors.Annotatef(err, "config: text %s", tc.Name))
		}
		if tc.Font != "" {
			if slot.Face, err = loadFont(tc.Font, tc.Size); err != nil {
				errs = append(errs, errors.Annotatef(err, "config: text %s", tc.Name))
			}
		}
	}
	var face font.Face
	if len(slots) != 0 {
		face, _ = loadFont("", 0)
	}
	self.Renderer = render.NewRenderer(self.Display.Scene(), face, slots, self.Log)

	cc := &self.Config.Caption
	if cc.Text != "" {
		f, err := loadFont(cc.Font, cc.Size)
		if err != nil {
			return append(errs, errors.Annotate(err, "config: caption"))
		}
		self.Renderer.SetCaptionFont(f)
		pos, err := pointConfig(cc.Position)
		if err != nil {
			return append(errs, errors.Annotate(err, "config: caption position"))
		}
		c, err := colorConfig(cc.Color)
		if err != nil {
			return append(errs, errors.Annotate(err, "config: caption"))
		}
		if err := self.SetCaption(cc.Text, pos, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// restoreValues shows last values from previous run until first Fetch.
func (self *Portal) restoreValues() {
	if !self.Persist.Enabled() {
		return
	}
	if err := self.Persist.Load(); err != nil {
		self.Log.Errorf("restore last values: %v", err)
		return
	}
	if len(self.LastValues.Values) == 0 {
		return
	}
	self.Log.Debugf("restore last values from %s", self.LastValues.Time.Format(time.RFC3339))
	self.renderValues(self.LastValues.Values)
	if err := self.Display.Refresh(); err != nil {
		self.Log.Errorf("display refresh: %v", err)
	}
}

// network initializes adapter on first use and ensures connection.
func (self *Portal) network(ctx context.Context) (*wifi.Session, error) {
	self.lk.Lock()
	ready := self.netReady
	self.lk.Unlock()
	if !ready {
		if err := self.Net.Init(ctx); err != nil {
			return nil, err
		}
		self.lk.Lock()
		self.netReady = true
		self.lk.Unlock()
	}
	if err := self.Net.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	return self.Net, nil
}

type portalStreamer struct{ p *Portal }

func (self portalStreamer) GetStream(ctx context.Context, url string) (*wifi.Response, error) {
	net, err := self.p.network(ctx)
	if err != nil {
		return nil, err
	}
	return net.GetStream(ctx, url)
}

func pointConfig(xs []int) (*image.Point, error) {
	switch len(xs) {
	case 0:
		return nil, nil
	case 2:
		return &image.Point{X: xs[0], Y: xs[1]}, nil
	}
	return nil, errors.NotValidf("point=%v", xs)
}

func colorConfig(s string) (color.Color, error) {
	if s == "" {
		return nil, nil
	}
	c, err := render.ParseColor(s)
	if err != nil {
		return nil, err
	}
	return c, nil
}
