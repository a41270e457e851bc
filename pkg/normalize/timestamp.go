package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"
)

// CanonicalLayout is the stored form of every timestamp: Eastern civil time
// without an offset.
const CanonicalLayout = "2006-01-02 15:04:05"

// DefaultZone is the zone canonical timestamps are expressed in.
const DefaultZone = "America/New_York"

type daylight int

const (
	daylightInfer daylight = iota
	daylightOn
	daylightOff
)

type grammarKind int

const (
	// absolute layouts carry an offset and convert by instant arithmetic.
	absolute grammarKind = iota
	// civil layouts are wall times in the target zone, optionally followed
	// by an EDT/EST abbreviation.
	civil
)

type grammar struct {
	name   string
	kind   grammarKind
	layout string
}

// grammars are tried in order; the first match wins. Civil layouts are
// matched against the upper-cased input so am/pm parse like AM/PM.
var grammars = []grammar{
	{"rfc1123-offset", absolute, "Mon, 02 Jan 2006 15:04:05 -0700"},
	{"rfc1123-offset", absolute, "Mon, 2 Jan 2006 15:04:05 -0700"},
	{"rfc1123-gmt", absolute, "Mon, 02 Jan 2006 15:04:05 GMT"},
	{"long-emdash", civil, "January 2, 2006 — 3:04 PM"},
	{"long", civil, "January 2, 2006 3:04 PM"},
	{"compact", civil, "Jan 2, 2006 3:04PM"},
	{"compact", civil, "Jan 2, 2006 3:04 PM"},
	{"iso-offset", absolute, time.RFC3339},
	{"iso-offset", absolute, "2006-01-02T15:04:05-0700"},
	{"iso-offset", absolute, "2006-01-02 15:04:05-07:00"},
	{"iso-naive", civil, "2006-01-02T15:04:05"},
	{"iso-naive", civil, "2006-01-02 15:04:05"},
	{"iso-naive", civil, "2006-01-02T15:04"},
	{"iso-date", civil, "2006-01-02"},
}

var abbreviations = []struct {
	suffix string
	flag   daylight
}{
	{"EDT", daylightOn},
	{"EST", daylightOff},
	{"ET", daylightInfer},
}

// Timestamps parses source date strings into one zone.
type Timestamps struct {
	loc *time.Location
}

// NewTimestamps builds a parser for loc. A nil loc means America/New_York.
func NewTimestamps(loc *time.Location) *Timestamps {
	if loc == nil {
		loc = MustLoadZone(DefaultZone)
	}
	return &Timestamps{loc: loc}
}

// LoadZone resolves an IANA zone name. An empty name means DefaultZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

// MustLoadZone is LoadZone that panics. The tzdata import makes the default
// zone always available.
func MustLoadZone(name string) *time.Location {
	loc, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Location returns the target zone.
func (t *Timestamps) Location() *time.Location { return t.loc }

// Parse resolves s to an instant expressed in the target zone.
func (t *Timestamps) Parse(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrDateFormatUnrecognized)
	}

	upper := strings.ToUpper(s)
	body, flag := splitAbbreviation(upper)

	for _, g := range grammars {
		switch g.kind {
		case absolute:
			if tm, err := time.Parse(g.layout, s); err == nil {
				return tm.In(t.loc), nil
			}
		case civil:
			if naive, err := time.Parse(g.layout, body); err == nil {
				return t.localize(naive, flag), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormatUnrecognized, s)
}

// Normalize parses s and formats it with CanonicalLayout.
func (t *Timestamps) Normalize(s string) (string, error) {
	tm, err := t.Parse(s)
	if err != nil {
		return "", err
	}
	return tm.Format(CanonicalLayout), nil
}

// FromUnix converts epoch seconds into the canonical form.
func (t *Timestamps) FromUnix(sec float64) string {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).In(t.loc).Format(CanonicalLayout)
}

// splitAbbreviation strips a trailing EDT/EST/ET and reports which daylight
// flag it implies.
func splitAbbreviation(s string) (string, daylight) {
	for _, a := range abbreviations {
		if !strings.HasSuffix(s, a.suffix) {
			continue
		}
		body := strings.TrimSuffix(s, a.suffix)
		// "10:20AMEST" and "10:20 AM EST" both strip; "BEST" does not.
		if body == "" || !(strings.HasSuffix(body, " ") || strings.HasSuffix(body, "M")) {
			continue
		}
		return strings.TrimSpace(body), a.flag
	}
	return s, daylightInfer
}

// localize attaches the target zone to a naive wall time. With an explicit
// daylight flag the flag's offset is tried first and the other offset
// second; whichever reproduces the wall time wins. That keeps unambiguous
// times at their civil value and lets the flag pick a side of a fall-back
// overlap. A spring-forward gap time matches neither offset and is read at
// the flag's offset: EST lands an hour later (2:30 -> 03:30 EDT), EDT an
// hour earlier (2:30 -> 01:30 EST).
func (t *Timestamps) localize(naive time.Time, flag daylight) time.Time {
	y, mo, d := naive.Date()
	h, mi, sec := naive.Clock()
	ns := naive.Nanosecond()

	if flag == daylightInfer {
		return time.Date(y, mo, d, h, mi, sec, ns, t.loc)
	}

	std, dst := zoneOffsets(t.loc, y)
	want, alt := dst, std
	if flag == daylightOff {
		want, alt = std, dst
	}

	for _, off := range []int{want, alt} {
		cand := time.Date(y, mo, d, h, mi, sec, ns, time.FixedZone("", off)).In(t.loc)
		if sameWallClock(cand, naive) {
			return cand
		}
	}
	return time.Date(y, mo, d, h, mi, sec, ns, time.FixedZone("", want)).In(t.loc)
}

// zoneOffsets returns the standard and daylight UTC offsets of loc in year.
// Zones without daylight saving return the same value twice.
func zoneOffsets(loc *time.Location, year int) (std, dst int) {
	_, jan := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, jul := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()
	if jan <= jul {
		return jan, jul
	}
	return jul, jan
}

func sameWallClock(a, b time.Time) bool {
	ay, amo, ad := a.Date()
	by, bmo, bd := b.Date()
	ah, ami, as := a.Clock()
	bh, bmi, bs := b.Clock()
	return ay == by && amo == bmo && ad == bd && ah == bh && ami == bmi && as == bs
}
