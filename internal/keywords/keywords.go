// Package keywords encodes the two synthetic activity attributes "what" and
// "public" into the free-text keyword field of a track document.
//
// Many services expose a single tag list and nothing else, so the attributes
// travel as reserved entries next to the user's own keywords:
//
//	Berlin, CamelCase, What:Cycling, Status:public
//
// Decode strips the reserved entries, Encode appends them again.
package keywords

import (
	"errors"
	"fmt"
	"strings"
)

// Reserved prefixes. Plain keywords must not start with either.
const (
	WhatPrefix   = "What:"
	StatusPrefix = "Status:"

	// StatusPublic is the status value that marks a public activity.
	StatusPublic = "public"
)

// ErrReserved is returned by CheckPlain for values using a reserved prefix.
var ErrReserved = errors.New("reserved keyword prefix")

// Decoded is the result of splitting a raw keyword string.
type Decoded struct {
	// Plain holds the user keywords in their original order, without
	// duplicates and without reserved entries.
	Plain []string

	// What is the value of the last What: entry. HasWhat tells whether
	// there was one at all.
	What    string
	HasWhat bool

	// Public is true if a Status:public entry was present.
	Public bool
}

// Split turns a comma separated keyword string into its trimmed, non-empty
// entries.
func Split(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Join is the inverse of Split.
func Join(values []string) string {
	return strings.Join(values, ", ")
}

// Decode extracts the reserved entries from raw.
func Decode(raw string) Decoded {
	var d Decoded
	seen := make(map[string]bool)
	for _, kw := range Split(raw) {
		switch {
		case strings.HasPrefix(kw, WhatPrefix):
			d.What = strings.TrimSpace(strings.TrimPrefix(kw, WhatPrefix))
			d.HasWhat = true
		case strings.HasPrefix(kw, StatusPrefix):
			d.Public = strings.TrimSpace(strings.TrimPrefix(kw, StatusPrefix)) == StatusPublic
		case !seen[kw]:
			seen[kw] = true
			d.Plain = append(d.Plain, kw)
		}
	}
	return d
}

// Encode builds the keyword string written to a document: the plain keywords
// followed by What:<what> and, for public activities, Status:public.
// plain is not modified.
func Encode(plain []string, what string, public bool) string {
	out := make([]string, 0, len(plain)+2)
	out = append(out, plain...)
	if what != "" {
		out = append(out, WhatPrefix+what)
	}
	if public {
		out = append(out, StatusPrefix+StatusPublic)
	}
	return Join(out)
}

// IsReserved reports whether value starts with a reserved prefix.
func IsReserved(value string) bool {
	return strings.HasPrefix(value, WhatPrefix) || strings.HasPrefix(value, StatusPrefix)
}

// CheckPlain returns ErrReserved if value cannot be used as a plain keyword.
func CheckPlain(value string) error {
	switch {
	case strings.HasPrefix(value, WhatPrefix):
		return fmt.Errorf("%w: %q, set the activity type instead", ErrReserved, value)
	case strings.HasPrefix(value, StatusPrefix):
		return fmt.Errorf("%w: %q, set the public flag instead", ErrReserved, value)
	}
	return nil
}
