package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/elonfeng/fingest/pkg/record"
)

// Separator joins multi-valued fields.
const Separator = ","

// Flatten joins a list of strings or of {"name": ...} objects with
// Separator. An empty list gives "". A nil value, or a value that is not a
// list, gives ok=false; a string is taken as already flattened.
func Flatten(v any) (string, bool) {
	s, _, ok := flatten(v)
	return s, ok
}

// flatten is Flatten that also counts the items it had to leave out.
func flatten(v any) (string, int, bool) {
	switch list := v.(type) {
	case nil:
		return "", 0, false
	case string:
		return list, 0, true
	case []string:
		return strings.Join(list, Separator), 0, true
	case []map[string]any:
		names := make([]string, 0, len(list))
		for _, m := range list {
			if name, ok := scalar(m["name"]); ok {
				names = append(names, name)
			}
		}
		return strings.Join(names, Separator), len(list) - len(names), true
	case []any:
		names := make([]string, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				item = m["name"]
			}
			if name, ok := scalar(item); ok {
				names = append(names, name)
			}
		}
		return strings.Join(names, Separator), len(list) - len(names), true
	}
	return "", 0, false
}

// scalar renders a JSON scalar as text. Numbers decoded with UseNumber keep
// their literal form.
func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

// number reads a JSON number or numeric string.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// fields reads one raw record and accumulates every problem it meets, so a
// mapping can be written as a flat struct literal and checked once.
type fields struct {
	raw      record.Raw
	ts       *Timestamps
	missing  []string
	dateErr  error
	warnings []string
}

func newFields(raw record.Raw, ts *Timestamps) *fields {
	return &fields{raw: raw, ts: ts}
}

// lookup returns the first present, non-null value among keys.
func (f *fields) lookup(keys ...string) (string, any) {
	for _, k := range keys {
		if v, ok := f.raw[k]; ok && v != nil {
			return k, v
		}
	}
	return keys[0], nil
}

// id reads a provided identifier.
func (f *fields) id(keys ...string) string {
	key, v := f.lookup(keys...)
	s, ok := scalar(v)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		f.missing = append(f.missing, key)
	}
	return s
}

// plain reads a required string that is stored verbatim.
func (f *fields) plain(keys ...string) string {
	key, v := f.lookup(keys...)
	s, ok := scalar(v)
	if !ok || strings.TrimSpace(s) == "" {
		f.missing = append(f.missing, key)
	}
	return strings.TrimSpace(s)
}

func (f *fields) optPlain(keys ...string) *string {
	_, v := f.lookup(keys...)
	s, ok := scalar(v)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// text reads required free text and sanitizes it.
func (f *fields) text(keys ...string) string {
	key, v := f.lookup(keys...)
	s, ok := textValue(v)
	if ok {
		s = Sanitize(s)
	}
	if !ok || s == "" {
		f.missing = append(f.missing, key)
	}
	return s
}

func (f *fields) optText(keys ...string) *string {
	_, v := f.lookup(keys...)
	s, ok := textValue(v)
	if !ok {
		return nil
	}
	s = Sanitize(s)
	return &s
}

// textValue accepts a string, a scalar, or a list of strings joined by a
// space (summaries arrive as bullet lists).
func textValue(v any) (string, bool) {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := scalar(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), true
	}
	if list, ok := v.([]string); ok {
		return strings.Join(list, " "), true
	}
	return scalar(v)
}

// date reads a required timestamp. A blank value counts as missing; an
// unparseable one is kept apart so the date policy can act on it.
func (f *fields) date(keys ...string) string {
	key, v := f.lookup(keys...)
	if s, ok := v.(string); v == nil || ok && strings.TrimSpace(s) == "" {
		f.missing = append(f.missing, key)
		return ""
	}
	s, err := f.timestamp(v)
	if err != nil && f.dateErr == nil {
		f.dateErr = fmt.Errorf("%s: %w", key, err)
	}
	return s
}

// optDate reads an optional timestamp; unparseable values become NULL with
// a warning.
func (f *fields) optDate(keys ...string) *string {
	key, v := f.lookup(keys...)
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	s, err := f.timestamp(v)
	if err != nil {
		f.warn("%s: %v, stored as null", key, err)
		return nil
	}
	return &s
}

func (f *fields) timestamp(v any) (string, error) {
	if s, ok := v.(string); ok {
		return f.ts.Normalize(s)
	}
	if sec, ok := number(v); ok {
		return f.ts.FromUnix(sec), nil
	}
	return "", fmt.Errorf("%w: %v", ErrDateFormatUnrecognized, v)
}

// optInt reads an optional integer; non-numeric values become NULL with a
// warning.
func (f *fields) optInt(keys ...string) *int64 {
	key, v := f.lookup(keys...)
	if v == nil {
		return nil
	}
	n, ok := number(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		f.warn("%s: %v is not a number, stored as null", key, v)
		return nil
	}
	i := int64(n)
	return &i
}

// list reads an optional multi-valued field.
func (f *fields) list(keys ...string) *string {
	key, v := f.lookup(keys...)
	s, dropped, ok := flatten(v)
	if !ok {
		if v != nil {
			f.warn("%s: unexpected %T, stored as null", key, v)
		}
		return nil
	}
	if dropped > 0 {
		f.warn("%s: dropped %d item(s) without a name", key, dropped)
	}
	return &s
}

func (f *fields) warn(format string, args ...any) {
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

// err reports why the record cannot be stored. Missing fields win over a bad
// date so a record is never both.
func (f *fields) err() error {
	if len(f.missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedRawRecord, strings.Join(f.missing, ", "))
	}
	if f.dateErr != nil {
		return f.dateErr
	}
	return nil
}

// isDateError reports whether err came from a required timestamp.
func isDateError(err error) bool {
	return errors.Is(err, ErrDateFormatUnrecognized) && !errors.Is(err, ErrMalformedRawRecord)
}
