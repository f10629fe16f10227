// Package rewrite normalizes generated request paths and keeps them unique
// per store.
package rewrite

import (
	"errors"
	"strconv"
	"strings"
)

// ErrEmptyPath is returned for paths that normalize to nothing.
var ErrEmptyPath = errors.New("request path is empty after normalization")

// Path is a request path split into the parts a numeric suffix is inserted
// between.
type Path struct {
	Dir           string
	Name          string
	Ext           string
	TrailingSlash bool
}

// ParsePath normalizes raw and splits it. Empty, "." and ".." segments are
// dropped, as are dots around the file name.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	trailing := strings.HasSuffix(raw, "/")

	segments := make([]string, 0, strings.Count(raw, "/")+1)
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return Path{}, ErrEmptyPath
	}

	file := segments[len(segments)-1]
	p := Path{
		Dir:           strings.Join(segments[:len(segments)-1], "/"),
		TrailingSlash: trailing,
	}

	file = strings.Trim(file, ".")
	if i := strings.LastIndexByte(file, '.'); i > 0 && !trailing {
		p.Name, p.Ext = file[:i], file[i+1:]
	} else {
		p.Name = file
	}
	p.Name = strings.Trim(p.Name, ".")
	if p.Name == "" {
		return Path{}, ErrEmptyPath
	}
	return p, nil
}

// Format assembles dir/name[-index][.ext][/]. An index of zero adds no
// suffix; the trailing slash is kept only when asked for and present.
func (p Path) Format(index int, keepTrailingSlash bool) string {
	var b strings.Builder
	if p.Dir != "" {
		b.WriteString(p.Dir)
		b.WriteByte('/')
	}
	b.WriteString(p.Name)
	if index > 0 {
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(index))
	}
	if p.Ext != "" {
		b.WriteByte('.')
		b.WriteString(p.Ext)
	}
	if keepTrailingSlash && p.TrailingSlash {
		b.WriteByte('/')
	}
	return b.String()
}

// String is the normalized path without suffix.
func (p Path) String() string {
	return p.Format(0, true)
}

// Sanitize normalizes raw and optionally inserts a numeric suffix before the
// extension.
func Sanitize(raw string, index int, keepTrailingSlash bool) (string, error) {
	p, err := ParsePath(raw)
	if err != nil {
		return "", err
	}
	return p.Format(index, keepTrailingSlash), nil
}
