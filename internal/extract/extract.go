// Package extract pulls values out of decoded JSON documents by path
// or out of raw text by regular expression.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var ErrPathType = errors.New("path step does not match document type")

// Key is one path step: Name for mappings, Index for sequences.
type Key struct {
	Name    string
	Index   int
	IsIndex bool
}

func Name(s string) Key { return Key{Name: s} }
func Index(i int) Key   { return Key{Index: i, IsIndex: true} }

func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return strconv.Quote(k.Name)
}

type Path []Key

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = k.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParsePath converts config strings to keys, integers become Index.
func ParsePath(ss []string) Path {
	p := make(Path, len(ss))
	for i, s := range ss {
		if n, err := strconv.Atoi(s); err == nil {
			p[i] = Index(n)
		} else {
			p[i] = Name(s)
		}
	}
	return p
}

type KeyNotFoundError struct {
	Key  Key
	Path Path
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key=%s not found, path=%s", e.Key, e.Path)
}

func IsKeyNotFound(err error) bool {
	_, ok := errors.Cause(err).(*KeyNotFoundError)
	return ok
}

type NoMatchError struct {
	Pattern string
}

func (e *NoMatchError) Error() string { return fmt.Sprintf("no match for pattern=%q", e.Pattern) }

func IsNoMatch(err error) bool {
	_, ok := errors.Cause(err).(*NoMatchError)
	return ok
}

// ExtractByPath walks doc along path. hint, if not nil, is called
// between steps and may release memory.
func ExtractByPath(doc interface{}, path Path, hint func()) (interface{}, error) {
	cur := doc
	for _, key := range path {
		if hint != nil {
			hint()
		}
		switch node := cur.(type) {
		case map[string]interface{}:
			name := key.Name
			if key.IsIndex {
				name = strconv.Itoa(key.Index)
			}
			v, ok := node[name]
			if !ok {
				return nil, errors.Trace(&KeyNotFoundError{Key: key, Path: path})
			}
			cur = v

		case []interface{}:
			if !key.IsIndex {
				return nil, errors.Annotatef(ErrPathType, "name key=%s on sequence, path=%s", key, path)
			}
			i := key.Index
			if i < 0 {
				i += len(node)
			}
			if i < 0 || i >= len(node) {
				return nil, errors.Trace(&KeyNotFoundError{Key: key, Path: path})
			}
			cur = node[i]

		default:
			return nil, errors.Annotatef(ErrPathType, "key=%s on scalar %T, path=%s", key, cur, path)
		}
	}
	return cur, nil
}

// ExtractByPattern returns first capture group of first match,
// or whole match when pattern has no groups.
func ExtractByPattern(text string, re *regexp.Regexp) (string, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", errors.Trace(&NoMatchError{Pattern: re.String()})
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}
