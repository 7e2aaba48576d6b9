package activity

import (
	"fmt"
	"sort"
	"strings"
)

// Capability names one operation a backend physically supports.
type Capability string

const (
	// CapSave allows writing complete activities.
	CapSave Capability = "save"

	// CapSaveEmpty allows writing activities without any track point.
	CapSaveEmpty Capability = "save-empty"

	// CapRemove allows deleting activities.
	CapRemove Capability = "remove"

	// CapWriteTitle allows changing the title of a stored activity.
	CapWriteTitle Capability = "write-title"

	// CapWriteDescription allows changing the description.
	CapWriteDescription Capability = "write-description"

	// CapWriteWhat allows changing the activity type.
	CapWriteWhat Capability = "write-what"

	// CapWritePublic allows changing the public flag.
	CapWritePublic Capability = "write-public"

	// CapWriteKeywords allows adding and removing keywords.
	CapWriteKeywords Capability = "write-keywords"
)

// AllCapabilities lists every known capability in declaration order.
var AllCapabilities = []Capability{
	CapSave,
	CapSaveEmpty,
	CapRemove,
	CapWriteTitle,
	CapWriteDescription,
	CapWriteWhat,
	CapWritePublic,
	CapWriteKeywords,
}

// WriteCapabilities are the attribute level write capabilities.
var WriteCapabilities = []Capability{
	CapWriteTitle,
	CapWriteDescription,
	CapWriteWhat,
	CapWritePublic,
	CapWriteKeywords,
}

// ParseCapability validates a capability name.
func ParseCapability(name string) (Capability, error) {
	c := Capability(strings.TrimSpace(name))
	for _, known := range AllCapabilities {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", name)
}

// Capabilities is an immutable set of capabilities. The zero value is the
// empty set.
type Capabilities struct {
	set map[Capability]struct{}
}

// NewCapabilities returns the set holding caps.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Capabilities{set: set}
}

// FullCapabilities returns the set of all known capabilities.
func FullCapabilities() Capabilities {
	return NewCapabilities(AllCapabilities...)
}

// Has reports whether c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	_, ok := cs.set[c]
	return ok
}

// Without returns a copy of the set with caps removed.
func (cs Capabilities) Without(caps ...Capability) Capabilities {
	out := NewCapabilities(cs.List()...)
	for _, c := range caps {
		delete(out.set, c)
	}
	return out
}

// With returns a copy of the set with caps added.
func (cs Capabilities) With(caps ...Capability) Capabilities {
	return NewCapabilities(append(cs.List(), caps...)...)
}

// List returns the capabilities sorted by name.
func (cs Capabilities) List() []Capability {
	out := make([]Capability, 0, len(cs.set))
	for c := range cs.set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of capabilities in the set.
func (cs Capabilities) Len() int {
	return len(cs.set)
}

// String returns the sorted, comma separated capability names.
func (cs Capabilities) String() string {
	names := make([]string, 0, len(cs.set))
	for _, c := range cs.List() {
		names = append(names, string(c))
	}
	return strings.Join(names, ",")
}

// ParseCapabilities parses a comma separated list of capability names, the
// format produced by Capabilities.String.
func ParseCapabilities(list string) (Capabilities, error) {
	var caps []Capability
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := ParseCapability(name)
		if err != nil {
			return Capabilities{}, err
		}
		caps = append(caps, c)
	}
	return NewCapabilities(caps...), nil
}
