package scanner

import (
	"fmt"

	"github.com/leaktk/sysvolscan/pkg/kind"
)

// Mode decides how far a scan goes
type Mode int

const (
	// Extract fetches every candidate and runs the rules over it
	Extract Mode = iota
	// EnumerateOnly stops after discovery
	EnumerateOnly
)

var modeNames = map[string]Mode{
	"extract":       Extract,
	"enumerate":     EnumerateOnly,
	"enumerateOnly": EnumerateOnly,
}

// String returns the name used in reports
func (m Mode) String() string {
	switch m {
	case EnumerateOnly:
		return "enumerate"
	default:
		return "extract"
	}
}

// ParseMode accepts the mode names leniently, e.g. "EnumerateOnly" or
// "enumerate-only"
func ParseMode(name string) (Mode, error) {
	if mode, ok := kind.Lookup(name, modeNames); ok {
		return mode, nil
	}

	return Extract, fmt.Errorf("invalid scan mode: mode=%q", name)
}
