package normalize

import (
	"errors"
	"testing"
	"time"
)

func TestTimestampsNormalize(t *testing.T) {
	ts := NewTimestamps(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"rfc1123 utc", "Wed, 15 Jan 2020 09:30:00 +0000", "2020-01-15 04:30:00"},
		{"rfc1123 offset", "Fri, 04 Oct 2024 10:50:00 -0400", "2024-10-04 10:50:00"},
		{"rfc1123 single digit day", "Sat, 5 Oct 2024 14:00:00 +0000", "2024-10-05 10:00:00"},
		{"rfc1123 gmt", "Wed, 15 Jan 2020 09:30:00 GMT", "2020-01-15 04:30:00"},
		{"compact est", "DEC 20, 2022 10:20AM EST", "2022-12-20 10:20:00"},
		{"compact lower case", "dec 20, 2022 10:20pm EST", "2022-12-20 22:20:00"},
		{"compact no space before abbreviation", "Dec 20, 2022 10:20AMEST", "2022-12-20 10:20:00"},
		{"emdash edt", "October 04, 2024 — 10:50 am EDT", "2024-10-04 10:50:00"},
		{"long without dash", "October 4, 2024 9:05 PM EDT", "2024-10-04 21:05:00"},
		{"long without abbreviation", "July 1, 2024 12:15 AM", "2024-07-01 00:15:00"},
		{"extra whitespace", "  October 04,   2024 —\n10:50 AM  EDT ", "2024-10-04 10:50:00"},
		{"mismatched flag keeps civil time", "December 20, 2022 10:20 AM EDT", "2022-12-20 10:20:00"},
		{"iso zulu", "2019-07-01T20:54:49Z", "2019-07-01 16:54:49"},
		{"iso offset", "2024-10-04T10:50:00-04:00", "2024-10-04 10:50:00"},
		{"iso fractional", "2024-01-15T14:30:00.123Z", "2024-01-15 09:30:00"},
		{"iso naive is eastern", "2024-10-04T10:50:00", "2024-10-04 10:50:00"},
		{"iso naive space", "2024-01-15 09:30:00", "2024-01-15 09:30:00"},
		{"spring forward gap with est moves forward", "March 13, 2022 2:30 AM EST", "2022-03-13 03:30:00"},
		{"spring forward gap with edt moves back", "March 10, 2024 2:30 AM EDT", "2024-03-10 01:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimestampsUnrecognized(t *testing.T) {
	ts := NewTimestamps(nil)
	for _, in := range []string{"not a date", "", "   ", "13/45/2020", "October 04, 2024"} {
		if _, err := ts.Normalize(in); !errors.Is(err, ErrDateFormatUnrecognized) {
			t.Errorf("Normalize(%q) error = %v, want ErrDateFormatUnrecognized", in, err)
		}
	}
}

func TestTimestampsFallBackOverlap(t *testing.T) {
	ts := NewTimestamps(nil)

	tests := []struct {
		in      string
		wantUTC string
	}{
		{"November 6, 2022 1:30 AM EDT", "2022-11-06T05:30:00Z"},
		{"November 6, 2022 1:30 AM EST", "2022-11-06T06:30:00Z"},
	}
	for _, tt := range tests {
		got, err := ts.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if s := got.UTC().Format(time.RFC3339); s != tt.wantUTC {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, s, tt.wantUTC)
		}
		if s := got.Format(CanonicalLayout); s != "2022-11-06 01:30:00" {
			t.Errorf("Parse(%q) civil = %s, want 2022-11-06 01:30:00", tt.in, s)
		}
	}
}

func TestTimestampsFromUnix(t *testing.T) {
	ts := NewTimestamps(nil)
	if got := ts.FromUnix(1562014489); got != "2019-07-01 16:54:49" {
		t.Errorf("FromUnix = %q, want 2019-07-01 16:54:49", got)
	}
	if got := ts.FromUnix(1579080600); got != "2020-01-15 04:30:00" {
		t.Errorf("FromUnix = %q, want 2020-01-15 04:30:00", got)
	}
}

func TestTimestampsOtherZone(t *testing.T) {
	ts := NewTimestamps(MustLoadZone("UTC"))
	got, err := ts.Normalize("Wed, 15 Jan 2020 09:30:00 -0500")
	if err != nil {
		t.Fatal(err)
	}
	if got != "2020-01-15 14:30:00" {
		t.Errorf("got %q, want 2020-01-15 14:30:00", got)
	}
}

func TestLoadZoneRejectsUnknown(t *testing.T) {
	if _, err := LoadZone("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
