package branch

import "testing"

func TestParentPath(t *testing.T) {
	cases := []struct {
		path   string
		parent string
		ok     bool
	}{
		{"MAIN", "", false},
		{"MAIN/projectA", "MAIN", true},
		{"MAIN/projectA/taskB", "MAIN/projectA", true},
		{"MAIN/SNOMEDCT-XX/projectA", "MAIN/SNOMEDCT-XX", true},
	}
	for _, tc := range cases {
		parent, ok := ParentPath(tc.path)
		if ok != tc.ok || parent != tc.parent {
			t.Errorf("ParentPath(%q) = %q,%v want %q,%v", tc.path, parent, ok, tc.parent, tc.ok)
		}
	}
}

func TestIsValidPath(t *testing.T) {
	for path, want := range map[string]bool{
		"MAIN":           true,
		"MAIN/projectA":  true,
		"main":           false,
		"MAIN//taskB":    false,
		"projectA":       false,
		"MAIN/projectA/": false,
	} {
		if got := IsValidPath(path); got != want {
			t.Errorf("IsValidPath(%q) = %v want %v", path, got, want)
		}
	}
}

func TestInternalMetadata(t *testing.T) {
	b := &Branch{Path: "MAIN/projectA"}

	if got := b.InternalValue(IntegrityIssueMetadataKey); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}

	b.SetInternalValue(IntegrityIssueMetadataKey, "true")
	if got := b.InternalValue(IntegrityIssueMetadataKey); got != "true" {
		t.Errorf("expected true, got %q", got)
	}

	clone := b.CloneMetadata()
	b.RemoveInternalValue(IntegrityIssueMetadataKey)
	if got := b.InternalValue(IntegrityIssueMetadataKey); got != "" {
		t.Errorf("expected key removed, got %q", got)
	}

	// The clone must not observe mutations made after it was taken
	internal := clone[InternalMetadataKey].(map[string]any)
	if internal[IntegrityIssueMetadataKey] != "true" {
		t.Errorf("clone lost value: %v", clone)
	}
}
