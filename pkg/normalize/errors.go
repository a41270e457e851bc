package normalize

import "errors"

var (
	// ErrDateFormatUnrecognized is returned when no timestamp grammar matches.
	ErrDateFormatUnrecognized = errors.New("date format unrecognized")
	// ErrIdentifierDegenerate marks an identifier derived from an empty URL.
	ErrIdentifierDegenerate = errors.New("identifier derived from empty url")
	// ErrMalformedRawRecord marks a raw record missing a required field.
	ErrMalformedRawRecord = errors.New("malformed raw record")
	// ErrUnknownSource is returned for a source id with no record mapping.
	ErrUnknownSource = errors.New("unknown source")
)
