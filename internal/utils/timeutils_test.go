package utils

import "testing"

func TestParseRemoteTime(t *testing.T) {
	for _, in := range []string{"2024-03-01T10:00:00Z", "2024-03-01T10:00:00.123+02:00", "2024-03-01T10:00:00", "2024-03-01"} {
		if _, err := ParseRemoteTime(in); err != nil {
			t.Fatalf("expected %q to parse: %v", in, err)
		}
	}
	if _, err := ParseRemoteTime("yesterday"); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
	if _, err := ParseRemoteTime(" "); err == nil {
		t.Fatalf("expected error for empty value")
	}
}
