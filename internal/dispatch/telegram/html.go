package telegram

import (
	"html"
	"strings"
)

// sanitizeHTML escapes everything Telegram's HTML parser would reject:
// unknown tags (a Java "<init>" frame), bare '<', '>' and '&'. Balanced
// allowed tags and the entities Telegram knows are kept as written.
func sanitizeHTML(s string) string {
	type open struct {
		name string
		at   int
	}
	var (
		out   []string
		stack []open
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			out = append(out, text.String())
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '<':
			name, closing, n := allowedTag(s[i:])
			if n == 0 {
				text.WriteString("&lt;")
				i++
				continue
			}
			flush()
			raw := s[i : i+n]
			switch {
			case !closing:
				stack = append(stack, open{name: name, at: len(out)})
				out = append(out, raw)
			case len(stack) > 0 && stack[len(stack)-1].name == name:
				stack = stack[:len(stack)-1]
				out = append(out, raw)
			default:
				out = append(out, html.EscapeString(raw))
			}
			i += n
		case '>':
			text.WriteString("&gt;")
			i++
		case '&':
			if n := entityLen(s[i:]); n > 0 {
				text.WriteString(s[i : i+n])
				i += n
				continue
			}
			text.WriteString("&amp;")
			i++
		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()

	// Unclosed tags would fail the whole message.
	for _, o := range stack {
		out[o.at] = html.EscapeString(out[o.at])
	}
	return strings.Join(out, "")
}

// allowedTag reports the lower-cased name of an allowed tag at the start of
// s and its length, or n == 0 when s does not start with one.
func allowedTag(s string) (name string, closing bool, n int) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return "", false, 0
	}
	name = s[1:end]
	if strings.HasPrefix(name, "/") {
		closing = true
		name = name[1:]
	}
	name = strings.ToLower(name)
	if !isAllowedTag(name) {
		return "", false, 0
	}
	return name, closing, end + 1
}

// entityLen returns the length of a Telegram-supported entity at the start
// of s: &lt; &gt; &amp; &quot; or a numeric reference.
func entityLen(s string) int {
	for _, e := range []string{"&lt;", "&gt;", "&amp;", "&quot;"} {
		if strings.HasPrefix(s, e) {
			return len(e)
		}
	}
	if !strings.HasPrefix(s, "&#") {
		return 0
	}
	i, hex := 2, false
	if i < len(s) && (s[i] == 'x' || s[i] == 'X') {
		hex = true
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i], hex) {
		i++
	}
	if i == start || i >= len(s) || s[i] != ';' {
		return 0
	}
	return i + 1
}

func isDigit(c byte, hex bool) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case !hex:
		return false
	case 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		return true
	}
	return false
}

// isAllowedTag lists the tags the Bot API accepts without attributes.
func isAllowedTag(name string) bool {
	switch name {
	case "b", "strong", "i", "em", "u", "ins", "s", "strike", "del",
		"code", "pre", "blockquote", "tg-spoiler":
		return true
	}
	return false
}
