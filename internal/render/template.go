// Package render turns notification templates into text.
//
// A template is plain text with $-placeholders ($class, $level, $message,
// $marker, $source, $context, $stack, $date, $time). Templates are compiled
// once into literal and placeholder segments; rendering evaluates each
// placeholder present in the template exactly once and splices the value into
// every occurrence. Values are never re-scanned for placeholders.
package render

import (
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Token identifies a placeholder. The declaration order is the evaluation order.
type Token int

const (
	TokenClass Token = iota
	TokenLevel
	TokenMessage
	TokenMarker
	TokenSource
	TokenContext
	TokenStack
	TokenDate
	TokenTime

	numTokens
)

var tokenText = [numTokens]string{
	TokenClass:   "$class",
	TokenLevel:   "$level",
	TokenMessage: "$message",
	TokenMarker:  "$marker",
	TokenSource:  "$source",
	TokenContext: "$context",
	TokenStack:   "$stack",
	TokenDate:    "$date",
	TokenTime:    "$time",
}

func (t Token) String() string {
	if t < 0 || t >= numTokens {
		return "$?"
	}
	return tokenText[t]
}

// tokens maps placeholder text to Token. The tree is immutable and shared.
var tokens = func() *iradix.Tree {
	tr := iradix.New()
	for i, s := range tokenText {
		tr, _, _ = tr.Insert([]byte(s), Token(i))
	}
	return tr
}()

type segment struct {
	lit   string
	tok   Token
	isTok bool
}

// Template is a compiled, immutable template. Safe for concurrent use.
type Template struct {
	raw  string
	segs []segment
	used [numTokens]bool
}

// Compile scans raw once and splits it into literal and placeholder segments.
// A '$' that does not start a known placeholder is kept as text.
func Compile(raw string) *Template {
	t := &Template{raw: raw}
	root := tokens.Root()

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segs = append(t.segs, segment{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); {
		j := strings.IndexByte(raw[i:], '$')
		if j < 0 {
			lit.WriteString(raw[i:])
			break
		}
		lit.WriteString(raw[i : i+j])
		i += j

		k, v, ok := root.LongestPrefix([]byte(raw[i:]))
		if !ok {
			lit.WriteByte('$')
			i++
			continue
		}
		tok := v.(Token)
		flush()
		t.segs = append(t.segs, segment{tok: tok, isTok: true})
		t.used[tok] = true
		i += len(k)
	}
	flush()
	return t
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Uses reports whether the template contains tok.
func (t *Template) Uses(tok Token) bool {
	if tok < 0 || tok >= numTokens {
		return false
	}
	return t.used[tok]
}
