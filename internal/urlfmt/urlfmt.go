// Package urlfmt expands URL templates such as
// https://pr-{pr_number}.example.com and resolves route paths against them.
package urlfmt

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Well-known macro tokens.
const (
	Branch     = "{branch}"
	CommitHash = "{commit_hash}"
	PRNumber   = "{pr_number}"
	TargetURL  = "{target_url}"
	EnvURL     = "{environment_url}"
	BaseURL    = "{base_url}"
)

var (
	tokenPattern    = regexp.MustCompile(`\{[^{}]+\}`)
	truncatePattern = regexp.MustCompile(`^\{commit_hash:(\d)\}$`)
	schemePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)
)

// FormatError reports a base URL that is not a valid absolute URL once its
// macros are expanded.
type FormatError struct {
	URL string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("invalid url %q", e.URL)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Formatter turns route paths into absolute URLs.
type Formatter struct {
	base   *url.URL
	raw    string
	macros map[string]string
}

// New expands macros in baseURL and validates the result. Macro keys include
// their braces, e.g. "{branch}".
func New(baseURL string, macros map[string]string) (*Formatter, error) {
	f := &Formatter{macros: make(map[string]string, len(macros))}
	for k, v := range macros {
		f.macros[k] = v
	}
	f.raw = f.Expand(baseURL)

	u, err := url.Parse(f.raw)
	if err != nil {
		return nil, &FormatError{URL: f.raw, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &FormatError{URL: f.raw}
	}
	f.base = u
	return f, nil
}

// Base returns the expanded base URL.
func (f *Formatter) Base() string { return f.raw }

// Format returns the absolute URL for path. An empty path, or one equal to the
// expanded base, yields the base itself; absolute URLs are only expanded.
func (f *Formatter) Format(path string) (string, error) {
	if path == "" || path == f.raw {
		return f.raw, nil
	}
	expanded := f.Expand(path)
	if schemePattern.MatchString(expanded) {
		return expanded, nil
	}
	ref, err := url.Parse(expanded)
	if err != nil {
		return "", &FormatError{URL: expanded, Err: err}
	}
	return f.base.ResolveReference(ref).String(), nil
}

// Expand replaces every known macro in s. Unknown tokens are left untouched.
func (f *Formatter) Expand(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		if m := truncatePattern.FindStringSubmatch(token); m != nil {
			hash, ok := f.macros[CommitHash]
			if !ok {
				return token
			}
			n := int(m[1][0] - '0')
			if n > len(hash) {
				n = len(hash)
			}
			return hash[:n]
		}
		if v, ok := f.macros[token]; ok {
			return v
		}
		return token
	})
}
