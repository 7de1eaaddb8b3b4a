package render

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"logchat/internal/logevent"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Renderer holds rendering options. The zero value renders in local time
// without escaping.
type Renderer struct {
	// Location for $date and $time. Nil means time.Local.
	Location *time.Location
	// Escape, when set, is applied to every resolved placeholder value.
	// Template literals are left untouched.
	Escape func(string) string
}

// Render renders t with default options.
func (t *Template) Render(ev logevent.Event) string {
	return Renderer{}.Render(t, ev)
}

// Render resolves every placeholder used by t against ev.
func (r Renderer) Render(t *Template, ev logevent.Event) string {
	if t == nil {
		return ""
	}

	var vals [numTokens]string
	for tok := Token(0); tok < numTokens; tok++ {
		if !t.used[tok] {
			continue
		}
		v := r.value(tok, ev)
		if r.Escape != nil {
			v = r.Escape(v)
		}
		vals[tok] = v
	}

	var b strings.Builder
	for _, s := range t.segs {
		if s.isTok {
			b.WriteString(vals[s.tok])
		} else {
			b.WriteString(s.lit)
		}
	}
	return b.String()
}

func (r Renderer) value(tok Token, ev logevent.Event) string {
	switch tok {
	case TokenClass:
		if ev.Source == nil {
			return ""
		}
		return simpleClassName(ev.Source.Class)
	case TokenLevel:
		return ev.Level.String()
	case TokenMessage:
		return ev.Message
	case TokenMarker:
		return ev.Marker
	case TokenSource:
		if ev.Source == nil {
			return ""
		}
		return "\n" + formatFrame(*ev.Source)
	case TokenContext:
		return formatContext(ev.ContextMap, ev.ContextStack)
	case TokenStack:
		return formatThrown(ev.Thrown)
	case TokenDate:
		return ev.Time().In(r.location()).Format(dateLayout)
	case TokenTime:
		return ev.Time().In(r.location()).Format(timeLayout)
	default:
		return ""
	}
}

func (r Renderer) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func simpleClassName(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		return class[i+1:]
	}
	return class
}

func formatFrame(f logevent.Frame) string {
	var b strings.Builder
	b.WriteString(f.Class)
	b.WriteByte('.')
	b.WriteString(f.Method)
	b.WriteByte('(')
	b.WriteString(f.File)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(f.Line))
	b.WriteByte(')')
	return b.String()
}

// formatContext lists the context map sorted by key, then the context stack.
func formatContext(m map[string]string, stack []string) string {
	lines := make([]string, 0, len(m)+1)
	if len(m) > 0 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, k+"="+m[k])
		}
	}
	if len(stack) > 0 {
		lines = append(lines, "contextStack=["+strings.Join(stack, ", ")+"]")
	}
	return strings.Join(lines, "\n")
}

func formatThrown(th *logevent.Thrown) string {
	if th == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(th.Type)
	b.WriteString(": ")
	b.WriteString(th.Message)
	for _, f := range th.Frames {
		b.WriteString("\nat ")
		b.WriteString(formatFrame(f))
	}
	return b.String()
}
