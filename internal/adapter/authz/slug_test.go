package authz

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jacob", "jacob"},
		{"Jacob", "jacob"},
		{"Jane Doe", "jane-doe"},
		{"  padded  name  ", "padded-name"},
		{"José García", "jose-garcia"},
		{"snake_case_name", "snake_case_name"},
		{"already-a-slug", "already-a-slug"},
		{"user@example.com", "userexamplecom"},
		{"tabs\tand\nnewlines", "tabs-and-newlines"},
		{"123 Main St.", "123-main-st"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewNormalizerStrategies(t *testing.T) {
	if got := NewNormalizer("slugify")("Jane Doe"); got != "jane-doe" {
		t.Errorf("slugify: got %q", got)
	}
	if got := NewNormalizer("lowercase")("Jane Doe"); got != "jane doe" {
		t.Errorf("lowercase: got %q", got)
	}
	if got := NewNormalizer("identity")("Jane Doe"); got != "Jane Doe" {
		t.Errorf("identity: got %q", got)
	}
}

func TestNewNormalizerDefaultsToSlugify(t *testing.T) {
	for _, strategy := range []string{"", "unknown", " SLUGIFY "} {
		if got := NewNormalizer(strategy)("Jane Doe"); got != "jane-doe" {
			t.Errorf("NewNormalizer(%q): got %q, want jane-doe", strategy, got)
		}
	}
}
