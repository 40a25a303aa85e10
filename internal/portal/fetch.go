package portal

import (
	"context"
	"encoding/json"
	"image"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/portal/hardware/rtc"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/hardware/wifi"
	"github.com/temoto/portal/internal/extract"
	"github.com/temoto/portal/internal/platform"
)

// Fetch runs the pipeline once: request, parse, extract, image, render.
func (self *Portal) Fetch(ctx context.Context) (extract.Values, error) {
	r, err := self.fetchResponse(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text, err := r.Text()
	if err != nil {
		return nil, errors.Annotate(err, "fetch")
	}

	var doc interface{}
	if self.Extractor.NeedsJSON() || len(self.imagePath) != 0 {
		if doc, err = self.parseJSON(r, len(text)); err != nil {
			return nil, err
		}
	}

	values, err := self.Extractor.Values(doc, text)
	if err != nil {
		self.Log.Errorf("fetch extract: %v", err)
		return nil, errors.Annotate(err, "fetch extract")
	}

	imageURL := ""
	if len(self.imagePath) != 0 {
		v, err := extract.ExtractByPath(doc, self.imagePath, self.Extractor.Hint)
		switch {
		case err == nil:
			if s, ok := v.(string); ok {
				imageURL = s
			} else {
				self.Log.Errorf("image path=%s value=%v is not string", self.imagePath, v)
				self.defaultBackground()
			}
		case extract.IsKeyNotFound(err):
			self.Log.Infof("error finding image data key! %v", err)
			self.defaultBackground()
		default:
			return nil, errors.Annotate(err, "fetch image path")
		}
	}

	// release connection before image download
	_ = r.Close()

	if imageURL != "" {
		self.Images.Fetch(ctx, imageURL)
	}

	if self.OnSuccess != nil {
		self.OnSuccess(values)
	}

	self.renderValues(values)
	if err := self.Display.Refresh(); err != nil {
		self.Log.Errorf("display refresh: %v", err)
	}

	self.storeValues(values)
	return values, nil
}

func (self *Portal) fetchResponse(ctx context.Context) (*wifi.Response, error) {
	if self.useLocal {
		self.Log.Infof("*** USING LOCALFILE FOR DATA - NOT INTERNET!!! ***")
		r, err := wifi.NewLocalResponse(self.localFile)
		if err != nil {
			self.Log.Errorf("fetch local: %v", err)
			return nil, errors.Annotate(err, "fetch")
		}
		return r, nil
	}

	net, err := self.network(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "fetch")
	}
	url := self.Config.Fetch.URL
	self.Log.Infof("retrieving data from %s", url)
	self.Status.Set(status.Fetching)
	r, err := net.Get(ctx, url)
	if err != nil {
		self.Status.Set(status.Off)
		self.Log.Errorf("fetch: %v", err)
		return nil, errors.Annotate(err, "fetch")
	}
	self.Status.Set(status.Received)
	self.Log.Debugf("reply is OK status=%d", r.StatusCode)
	self.Status.Set(status.Off)
	return r, nil
}

// parseJSON reserves memory budget for decoded document first,
// exhaustion restarts device.
func (self *Portal) parseJSON(r *wifi.Response, size int) (interface{}, error) {
	if err := self.Budget.Reserve(size * self.jsonOverhead); err != nil {
		self.Log.Errorf("fetch json: %v", err)
		if platform.IsOutOfMemory(err) {
			if rerr := self.Restarter.Restart(err); rerr != nil {
				self.Log.Errorf("restart: %v", rerr)
			}
		}
		return nil, errors.Annotate(err, "fetch json")
	}
	doc, err := r.JSON()
	if err != nil {
		text, _ := r.Text()
		self.Log.Infof("couldn't parse json: %s", text)
		self.Log.Errorf("fetch json: %v", err)
		return nil, errors.Annotate(err, "fetch json")
	}
	return doc, nil
}

// renderValues renders value into the text slot with the same index,
// values beyond slot count are skipped.
func (self *Portal) renderValues(values []interface{}) {
	n := self.Renderer.NumSlots()
	for i, v := range values {
		if i >= n {
			break
		}
		if err := self.Renderer.Render(i, v); err != nil {
			self.Log.Errorf("render text %d: %v", i, err)
		}
	}
}

func (self *Portal) storeValues(values extract.Values) {
	if self.Persist.Enabled() {
		self.LastValues.Time = time.Now()
		self.LastValues.Values = values
		if err := self.Persist.Store(); err != nil {
			self.Log.Errorf("store values: %v", err)
		}
	}
	self.Tele.Values(values)
}

// GetLocalTime asks time service for local time and sets clock.
// Empty location means by IP geolocation.
func (self *Portal) GetLocalTime(ctx context.Context, location string) (rtc.LocalTime, error) {
	net, err := self.network(ctx)
	if err != nil {
		return rtc.LocalTime{}, errors.Annotate(err, "get local time")
	}
	url := self.timeService + "ip"
	if location != "" {
		url = self.timeService + "timezone/" + location
	}
	self.Log.Infof("getting time from %s", url)
	r, err := net.Get(ctx, url)
	if err != nil {
		return rtc.LocalTime{}, errors.Annotate(err, "get local time")
	}
	defer r.Close()
	doc, err := r.JSON()
	if err != nil {
		return rtc.LocalTime{}, errors.Annotate(err, "get local time")
	}
	t, err := parseTimeResponse(doc)
	if err != nil {
		return rtc.LocalTime{}, errors.Annotate(err, "get local time")
	}
	self.Log.Infof("local time: %s", t)
	if err := self.Clock.Set(t); err != nil {
		return t, errors.Annotate(err, "get local time")
	}
	return t, nil
}

func parseTimeResponse(doc interface{}) (rtc.LocalTime, error) {
	m, ok := doc.(map[string]interface{})
	if !ok {
		return rtc.LocalTime{}, errors.NotValidf("time response=%v", doc)
	}
	datetime, ok := m["datetime"].(string)
	if !ok {
		return rtc.LocalTime{}, errors.NotValidf("time response datetime=%v", m["datetime"])
	}
	t, err := rtc.ParseDatetime(datetime)
	if err != nil {
		return t, err
	}
	if t.YearDay, err = intField(m, "day_of_year"); err != nil {
		return t, err
	}
	if t.WeekDay, err = intField(m, "day_of_week"); err != nil {
		return t, err
	}
	dst, ok := m["dst"].(bool)
	if !ok {
		return t, errors.NotValidf("time response dst=%v", m["dst"])
	}
	t.DST = dst
	return t, nil
}

func intField(m map[string]interface{}, key string) (int, error) {
	if n, ok := m[key].(json.Number); ok {
		if x, err := n.Int64(); err == nil {
			return int(x), nil
		}
	}
	return 0, errors.NotValidf("time response %s=%v", key, m[key])
}

// Wget downloads url into file with progress on status LED.
func (self *Portal) Wget(ctx context.Context, url string, filename string) error {
	return self.Images.Wget(ctx, url, filename)
}

func (self *Portal) defaultBackground() {
	self.Log.Infof("falling back to default background")
	if err := self.SetBackground(self.Config.Display.DefaultBackground, image.Point{}); err != nil {
		self.Log.Errorf("default background: %v", err)
	}
}
