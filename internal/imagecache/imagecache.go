// Package imagecache downloads remote images through conversion service
// into local bitmap file and shows it as display background.
package imagecache

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/hardware/wifi"
	"github.com/temoto/portal/log2"
)

const (
	DefaultServiceURL = "http://res.cloudinary.com/schmarty/image/fetch/w_320,h_240,c_fill,f_bmp/"
	DefaultCacheFile  = "/tmp/portal-cache.bmp"
	DefaultChunkSize  = 12000
)

type Streamer interface {
	GetStream(ctx context.Context, url string) (*wifi.Response, error)
}

// BackgroundFunc shows image file, empty name means no background.
type BackgroundFunc func(name string, at image.Point) error

type Config struct {
	ServiceURL        string
	CacheFile         string
	DefaultBackground string
	Position          image.Point
	ChunkSize         int
	Debug             bool
	Progress          io.Writer // nil = log writer
}

type Cache struct {
	log           *log2.Log
	config        Config
	net           Streamer
	status        status.Signaler
	setBackground BackgroundFunc
}

func New(config Config, net Streamer, sig status.Signaler, bg BackgroundFunc, log *log2.Log) *Cache {
	if config.ServiceURL == "" {
		config.ServiceURL = DefaultServiceURL
	}
	if config.CacheFile == "" {
		config.CacheFile = DefaultCacheFile
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.Progress == nil {
		config.Progress = log.Writer()
	}
	if sig == nil {
		sig = status.NewIndicator(nil, log)
	}
	return &Cache{log: log, config: config, net: net, status: sig, setBackground: bg}
}

func (self *Cache) CacheFile() string { return self.config.CacheFile }

// ConvertURL prepends conversion service to source image URL as is.
func (self *Cache) ConvertURL(source string) string { return self.config.ServiceURL + source }

// Fetch never fails: any error is logged and default background restored.
func (self *Cache) Fetch(ctx context.Context, source string) {
	self.log.Infof("original image URL: %s", source)
	url := self.ConvertURL(source)
	self.log.Infof("convert URL: %s", url)

	err := self.Wget(ctx, url, self.config.CacheFile)
	if err == nil {
		err = self.setBackground(self.config.CacheFile, self.config.Position)
	}
	if err != nil {
		self.log.Errorf("image fetch source=%s err=%v", source, errors.ErrorStack(err))
		if err := self.setBackground(self.config.DefaultBackground, image.Point{}); err != nil {
			self.log.Errorf("restore default background err=%v", err)
		}
	}
}

// Wget streams url into filename in bounded chunks.
func (self *Cache) Wget(ctx context.Context, url string, filename string) error {
	defer self.status.Set(status.Off)
	self.status.Set(status.Fetching)

	r, err := self.net.GetStream(ctx, url)
	if err != nil {
		return errors.Annotate(err, "wget")
	}
	defer r.Close()
	if self.config.Debug {
		self.log.Debugf("headers: %v", r.Header)
	}
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return errors.Errorf("wget %s status=%d %s", url, r.StatusCode, http.StatusText(r.StatusCode))
	}

	self.log.Infof("saving data to %s", filename)
	started := time.Now()
	f, err := os.Create(filename)
	if err != nil {
		return errors.Annotate(err, "wget")
	}
	written, err := self.copyChunks(r, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Annotate(cerr, "wget close")
	}
	if err != nil {
		return err
	}
	if self.config.Progress != nil && !self.config.Debug {
		fmt.Fprintln(self.config.Progress)
	}
	self.log.Infof("Created file of %d bytes in %0.1f seconds", written, time.Since(started).Seconds())
	return nil
}

func (self *Cache) copyChunks(r *wifi.Response, w io.Writer) (int64, error) {
	total := r.ContentLength
	remaining := total
	var written int64
	chunks := r.Chunks(self.config.ChunkSize)
	for total < 0 || remaining > 0 {
		limit := 0
		if total >= 0 && remaining < int64(self.config.ChunkSize) {
			limit = int(remaining)
		}
		b, err := chunks.Next(limit)
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, errors.Annotate(err, "wget read")
		}
		self.status.Set(status.Writing)
		if _, err := w.Write(b); err != nil {
			return written, errors.Annotate(err, "wget write")
		}
		written += int64(len(b))
		remaining -= int64(len(b))
		if self.config.Debug {
			self.log.Debugf("Read %d bytes, %d remaining", written, remaining)
		} else if self.config.Progress != nil {
			_, _ = io.WriteString(self.config.Progress, ".")
		}
		self.status.Set(status.Reading)
	}
	if total >= 0 && remaining > 0 {
		return written, errors.Errorf("wget short body %d of %d bytes", written, total)
	}
	return written, nil
}

var reResize = regexp.MustCompile(`w_\d+,h_\d+`)

// ResizeServiceURL rewrites width and height baked into service prefix.
func ResizeServiceURL(base string, size image.Point) string {
	if size.X <= 0 || size.Y <= 0 {
		return base
	}
	return reResize.ReplaceAllString(base, fmt.Sprintf("w_%d,h_%d", size.X, size.Y))
}
