package storage

import (
	"strings"
	"testing"
	"time"
)

func TestObjectNameKeepsExtensionUnderPurposePrefix(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	name, err := ObjectName(PurposeVariantImage, "Front View.JPG", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(name, "products/variants/") || !strings.HasSuffix(name, ".jpg") {
		t.Fatalf("unexpected object name %s", name)
	}
	if strings.Contains(name, "Front") {
		t.Fatalf("expected original base name to be dropped, got %s", name)
	}

	other, err := ObjectName(PurposeVariantImage, "Front View.JPG", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == name {
		t.Fatalf("expected unique names, got %s twice", name)
	}
	if other < name {
		t.Fatalf("expected monotonic names, got %s after %s", other, name)
	}
}

func TestObjectNameRejectsBadInput(t *testing.T) {
	now := time.Now()
	cases := map[string]struct {
		purpose ImagePurpose
		file    string
	}{
		"traversal":   {PurposeProductCover, "../cover.png"},
		"separator":   {PurposeProductCover, "dir/cover.png"},
		"extension":   {PurposeProductCover, "cover.exe"},
		"empty":       {PurposeProductCover, " "},
		"bad purpose": {ImagePurpose("avatar"), "cover.png"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ObjectName(tc.purpose, tc.file, now); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
