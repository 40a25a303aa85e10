// Package state reads HCL configuration with includes.
package state

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/portal/helpers"
	tele_config "github.com/temoto/portal/internal/tele/config"
	"github.com/temoto/portal/log2"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Debug   bool          `hcl:"debug"`
	Network NetworkConfig `hcl:"network"`
	Fetch   FetchConfig   `hcl:"fetch"`
	Time    struct {
		Location   string `hcl:"location"`
		ServiceURL string `hcl:"service_url"`
	} `hcl:"time"`
	Display struct {
		Framebuffer       string `hcl:"framebuffer"`
		Width             int    `hcl:"width"`
		Height            int    `hcl:"height"`
		DefaultBackground string `hcl:"default_background"`
		BacklightPin      string `hcl:"backlight_pin"`
		BacklightSysfs    string `hcl:"backlight_sysfs"`
	} `hcl:"display"`
	Status struct {
		PinRed     string  `hcl:"pin_red"`
		PinGreen   string  `hcl:"pin_green"`
		PinBlue    string  `hcl:"pin_blue"`
		Brightness float32 `hcl:"brightness"`
	} `hcl:"status"`
	Touch struct {
		Device      string `hcl:"device"`
		Calibration []int  `hcl:"calibration"`
		Width       int    `hcl:"width"`
		Height      int    `hcl:"height"`
	} `hcl:"touch"`
	Texts   []*TextConfig `hcl:"text"`
	Caption struct {
		Text     string  `hcl:"text"`
		Font     string  `hcl:"font"`
		Size     float64 `hcl:"size"`
		Position []int   `hcl:"position"`
		Color    string  `hcl:"color"`
	} `hcl:"caption"`
	Audio struct {
		Command []string `hcl:"command"`
	} `hcl:"audio"`
	Memory struct {
		LimitKB      int `hcl:"limit_kb"`
		JSONOverhead int `hcl:"json_overhead"`
	} `hcl:"memory"`
	Restart struct {
		Mode string `hcl:"mode"`
	} `hcl:"restart"`
	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	Tele tele_config.Config `hcl:"tele"`
}

type NetworkConfig struct {
	Adapter       string `hcl:"adapter"`
	Interface     string `hcl:"interface"`
	SSID          string `hcl:"ssid"`
	Password      string `hcl:"password"` // secret
	InitRetries   int    `hcl:"init_retries"`
	InitBackoffMs int    `hcl:"init_backoff_ms"`
	TimeoutSec    int    `hcl:"timeout_sec"`
}

type FetchConfig struct {
	URL           string        `hcl:"url"`
	IntervalSec   int           `hcl:"interval_sec"`
	LocalFile     string        `hcl:"local_file"`
	CacheFile     string        `hcl:"cache_file"`
	ImageService  string        `hcl:"image_service"`
	ImageJSONPath []string      `hcl:"image_json_path"`
	ImageResize   []int         `hcl:"image_resize"`
	ImagePosition []int         `hcl:"image_position"`
	Regexp        []string      `hcl:"regexp"`
	JSONPath      []string      `hcl:"json_path"`
	Paths         []*PathConfig `hcl:"path"`
}

// PathConfig is one of multiple json paths, Name is its value index.
type PathConfig struct {
	Name string   `hcl:"name,key"`
	JSON []string `hcl:"json"`
}

// TextConfig is text slot, Name is slot index.
type TextConfig struct {
	Name     string  `hcl:"name,key"`
	Font     string  `hcl:"font"`
	Size     float64 `hcl:"size"`
	Position []int   `hcl:"position"`
	Color    string  `hcl:"color"`
	Wrap     int     `hcl:"wrap"`
	MaxLen   int     `hcl:"maxlen"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		errs = append(errs, c.validate()...)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func (c *Config) validate() []error {
	var errs []error
	if len(c.Fetch.JSONPath) != 0 && len(c.Fetch.Paths) != 0 {
		errs = append(errs, errors.NotValidf("config: fetch.json_path and fetch.path blocks are exclusive"))
	}
	if err := sortByIndex(len(c.Fetch.Paths), func(i int) string { return c.Fetch.Paths[i].Name },
		func(i, j int) { c.Fetch.Paths[i], c.Fetch.Paths[j] = c.Fetch.Paths[j], c.Fetch.Paths[i] }); err != nil {
		errs = append(errs, errors.Annotate(err, "config: fetch.path"))
	} else {
		// values are index-aligned with text slots, gaps would shift them
		for i, pc := range c.Fetch.Paths {
			if x, _ := strconv.Atoi(pc.Name); x != i {
				errs = append(errs, errors.NotValidf("config: fetch.path index=%d expected=%d", x, i))
				break
			}
		}
	}
	if err := sortByIndex(len(c.Texts), func(i int) string { return c.Texts[i].Name },
		func(i, j int) { c.Texts[i], c.Texts[j] = c.Texts[j], c.Texts[i] }); err != nil {
		errs = append(errs, errors.Annotate(err, "config: text"))
	}
	for _, t := range c.Texts {
		if len(t.Position) != 0 && len(t.Position) != 2 {
			errs = append(errs, errors.NotValidf("config: text %s position=%v", t.Name, t.Position))
		}
	}
	if n := len(c.Touch.Calibration); n != 0 && n != 4 {
		errs = append(errs, errors.NotValidf("config: touch.calibration=%v", c.Touch.Calibration))
	}
	return errs
}

// sortByIndex orders keyed blocks by their decimal key.
func sortByIndex(n int, key func(int) string, swap func(i, j int)) error {
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		x, err := strconv.Atoi(key(i))
		if err != nil || x < 0 {
			return errors.NotValidf("index=%q", key(i))
		}
		idx[i] = x
	}
	sort.Sort(indexSorter{idx, swap})
	for i := 1; i < n; i++ {
		if idx[i] == idx[i-1] {
			return errors.AlreadyExistsf("index=%d", idx[i])
		}
	}
	return nil
}

type indexSorter struct {
	idx  []int
	swap func(i, j int)
}

func (s indexSorter) Len() int           { return len(s.idx) }
func (s indexSorter) Less(i, j int) bool { return s.idx[i] < s.idx[j] }
func (s indexSorter) Swap(i, j int) {
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	s.swap(i, j)
}

// Index is slot number, valid after ReadConfig.
func (t *TextConfig) Index() int {
	x, _ := strconv.Atoi(t.Name)
	return x
}
