package artifacts

import "testing"

func TestStore_ShouldOffload(t *testing.T) {
	s := &Store{threshold: 10}

	if s.ShouldOffload("short") {
		t.Fatal("expected content under threshold to stay inline")
	}
	if !s.ShouldOffload("this content is definitely over ten bytes") {
		t.Fatal("expected content over threshold to be offloaded")
	}
}

func TestIsReference(t *testing.T) {
	cases := map[string]bool{
		"artifact://01H.../01H...": true,
		"plain inline content":     false,
		"":                         false,
	}
	for content, want := range cases {
		if got := IsReference(content); got != want {
			t.Errorf("IsReference(%q) = %v, want %v", content, got, want)
		}
	}
}
