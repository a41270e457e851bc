package normalize

import (
	"errors"
	"regexp"
	"testing"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestDeriveIDStable(t *testing.T) {
	const url = "https://www.nasdaq.com/articles/stocks-rally-2024-10-04"

	first := DeriveID(url)
	if !hexID.MatchString(first) {
		t.Fatalf("DeriveID = %q, want 16 lowercase hex chars", first)
	}
	for range 3 {
		if got := DeriveID(url); got != first {
			t.Fatalf("DeriveID not stable: %q then %q", first, got)
		}
	}
	if other := DeriveID(url + "/"); other == first {
		t.Errorf("trailing slash produced the same id %q", other)
	}
}

func TestDeriveIDDegenerate(t *testing.T) {
	id, err := DeriveIDChecked("")
	if !errors.Is(err, ErrIdentifierDegenerate) {
		t.Fatalf("error = %v, want ErrIdentifierDegenerate", err)
	}
	// sha256 of the empty string starts with e3b0c44298fc1c14.
	if id != "e3b0c44298fc1c14" {
		t.Errorf("degenerate id = %q, want e3b0c44298fc1c14", id)
	}
	if _, err := DeriveIDChecked("https://example.com"); err != nil {
		t.Errorf("unexpected error for non-empty url: %v", err)
	}
}
