package urlfmt

import (
	"errors"
	"testing"
)

var macros = map[string]string{
	Branch:     "feature-x",
	CommitHash: "0123456789abcdef",
	PRNumber:   "42",
}

func TestFormat(t *testing.T) {
	f, err := New("https://pr-{pr_number}.example.com/app/", macros)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Base() != "https://pr-42.example.com/app/" {
		t.Fatalf("Base() = %q", f.Base())
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty path returns base", "", "https://pr-42.example.com/app/"},
		{"path equal to base", "https://pr-42.example.com/app/", "https://pr-42.example.com/app/"},
		{"relative path", "blog/post", "https://pr-42.example.com/app/blog/post"},
		{"leading slash resets to origin", "/about", "https://pr-42.example.com/about"},
		{"dot segments", "../docs/./intro", "https://pr-42.example.com/docs/intro"},
		{"query string", "search?q={branch}", "https://pr-42.example.com/app/search?q=feature-x"},
		{"absolute url is only expanded", "https://cdn.example.com/{commit_hash:7}/", "https://cdn.example.com/0123456/"},
		{"absolute url with other scheme", "http://localhost:8080/{branch}", "http://localhost:8080/feature-x"},
		{"unknown macro untouched", "https://x.example.com/{nope}", "https://x.example.com/{nope}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Format(tt.path)
			if err != nil {
				t.Fatalf("Format(%q): %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	f, err := New("https://example.com", macros)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := map[string]string{
		"{branch}/{branch}":          "feature-x/feature-x",
		"{commit_hash}":              "0123456789abcdef",
		"{commit_hash:7}":            "0123456",
		"{commit_hash:0}":            "",
		"{commit_hash:12}":           "{commit_hash:12}",
		"{BRANCH}":                   "{BRANCH}",
		"pr-{pr_number}":             "pr-42",
		"no macros here":             "no macros here",
		"{pr_number}{commit_hash:3}": "42012",
	}
	for in, want := range tests {
		if got := f.Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtraMacros(t *testing.T) {
	f, err := New("{target_url}", map[string]string{TargetURL: "https://deploy-123.example.net"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := f.Format("/pricing")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "https://deploy-123.example.net/pricing" {
		t.Errorf("Format = %q", got)
	}
}

func TestShortCommitHash(t *testing.T) {
	f, err := New("https://{commit_hash:9}.example.com", map[string]string{CommitHash: "abc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Base() != "https://abc.example.com" {
		t.Errorf("Base() = %q", f.Base())
	}
}

func TestNewInvalidBase(t *testing.T) {
	for _, base := range []string{
		"",
		"/relative/only",
		"example.com",
		"https://{unknown}.example.com",
		"://missing-scheme",
	} {
		_, err := New(base, macros)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("New(%q) error = %v, want FormatError", base, err)
		}
	}
}
