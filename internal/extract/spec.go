package extract

import (
	"regexp"

	"github.com/juju/errors"
)

// PathSpec is either single path or list of paths, never both.
type PathSpec struct {
	paths    []Path
	multiple bool
}

func Single(p Path) PathSpec      { return PathSpec{paths: []Path{p}} }
func Multiple(ps []Path) PathSpec { return PathSpec{paths: ps, multiple: true} }

func (s PathSpec) IsZero() bool     { return len(s.paths) == 0 }
func (s PathSpec) IsMultiple() bool { return s.multiple }
func (s PathSpec) Paths() []Path    { return s.paths }

// Values are ordered extraction results, index-aligned with text slots.
type Values []interface{}

// Result is the sole value when exactly one, otherwise the whole list.
func (vs Values) Result() interface{} {
	if len(vs) == 1 {
		return vs[0]
	}
	return []interface{}(vs)
}

// Extractor applies configured json paths, else regexps, else passes text.
type Extractor struct {
	Paths    PathSpec
	Patterns []*regexp.Regexp
	Hint     func()
}

func CompilePatterns(ss []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, len(ss))
	for i, s := range ss {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, errors.Annotatef(err, "regexp[%d]", i)
		}
		res[i] = re
	}
	return res, nil
}

// NeedsJSON reports whether document must be parsed for values.
func (self *Extractor) NeedsJSON() bool { return !self.Paths.IsZero() }

// Values never runs patterns against parsed document, only raw text.
func (self *Extractor) Values(doc interface{}, text string) (Values, error) {
	switch {
	case !self.Paths.IsZero():
		vs := make(Values, 0, len(self.Paths.paths))
		for _, p := range self.Paths.paths {
			v, err := ExtractByPath(doc, p, self.Hint)
			if err != nil {
				return nil, errors.Annotatef(err, "json path=%s", p)
			}
			vs = append(vs, v)
		}
		return vs, nil

	case len(self.Patterns) != 0:
		vs := make(Values, 0, len(self.Patterns))
		for _, re := range self.Patterns {
			v, err := ExtractByPattern(text, re)
			if err != nil {
				return nil, err
			}
			vs = append(vs, v)
		}
		return vs, nil

	default:
		return Values{text}, nil
	}
}
