// Package palette maps log levels to notification colors.
//
// A policy is written as ordered segments separated by ';':
//
//	red: FATAL, ERROR; yellow: WARN; purple
//
// Each "color: LEVEL, ..." segment is a rule; rules are checked in
// declaration order and the first one listing the level wins. A bare trailing
// color is the default for unmatched levels. Without one, Fallback is used.
package palette

import (
	"errors"
	"fmt"
	"strings"

	"logchat/internal/logevent"
)

// Color is a notification color understood by the dispatchers.
type Color string

const (
	Yellow Color = "yellow"
	Red    Color = "red"
	Green  Color = "green"
	Purple Color = "purple"
	Gray   Color = "gray"
	// Random asks the dispatcher to pick a hue; the policy itself stays deterministic.
	Random Color = "random"
)

// Fallback is used when a policy has no default segment.
const Fallback = Yellow

// DefaultSpec is the policy used when none is configured.
const DefaultSpec = "red: FATAL, ERROR; yellow: WARN; purple"

var (
	ErrUnknownColor   = errors.New("palette: unknown color")
	ErrUnknownLevel   = errors.New("palette: unknown level")
	ErrMissingColor   = errors.New("palette: segment has no color")
	ErrMisplacedColor = errors.New("palette: default color must be the last segment")
)

// Colors returns the legal colors.
func Colors() []Color { return []Color{Yellow, Red, Green, Purple, Gray, Random} }

// ParseColor validates a color name (case-insensitive).
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", ErrMissingColor
	}
	for _, ok := range Colors() {
		if c == ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownColor, s)
}

// Rule assigns Color to a set of levels.
type Rule struct {
	Color  Color
	levels map[logevent.Level]struct{}
}

// Has reports whether the rule lists lvl.
func (r Rule) Has(lvl logevent.Level) bool {
	_, ok := r.levels[lvl]
	return ok
}

// Policy is an immutable, ordered rule list. Safe for concurrent use.
type Policy struct {
	rules []Rule
	def   Color
}

// Parse builds a Policy from its textual form. Empty segments are ignored;
// an empty spec yields a policy that always returns Fallback.
func Parse(spec string) (*Policy, error) {
	p := &Policy{def: Fallback}

	segs := strings.Split(spec, ";")
	// Index of the last non-empty segment, the only place a bare color may appear.
	last := -1
	for i, s := range segs {
		if strings.TrimSpace(s) != "" {
			last = i
		}
	}

	for i, raw := range segs {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}

		colorPart, levelPart, hasLevels := strings.Cut(seg, ":")
		c, err := ParseColor(colorPart)
		if err != nil {
			return nil, fmt.Errorf("segment %d %q: %w", i+1, seg, err)
		}
		if !hasLevels {
			if i != last {
				return nil, fmt.Errorf("segment %d %q: %w", i+1, seg, ErrMisplacedColor)
			}
			p.def = c
			continue
		}

		r := Rule{Color: c, levels: map[logevent.Level]struct{}{}}
		for _, name := range strings.Split(levelPart, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			lvl, err := logevent.ParseLevel(name)
			if err != nil {
				return nil, fmt.Errorf("segment %d %q: %w %q", i+1, seg, ErrUnknownLevel, name)
			}
			r.levels[lvl] = struct{}{}
		}
		p.rules = append(p.rules, r)
	}
	return p, nil
}

// MustParse is Parse for compile-time constants.
func MustParse(spec string) *Policy {
	p, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Pick returns the color of the first rule listing lvl, or the default.
func (p *Policy) Pick(lvl logevent.Level) Color {
	if p == nil {
		return Fallback
	}
	for _, r := range p.rules {
		if r.Has(lvl) {
			return r.Color
		}
	}
	return p.def
}

// Default returns the color used for unmatched levels.
func (p *Policy) Default() Color {
	if p == nil {
		return Fallback
	}
	return p.def
}
