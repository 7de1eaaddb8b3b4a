// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import "strings"

// telegramTextLimit stays under the Bot API's 4096 character message cap.
const telegramTextLimit = 4000

// splitTelegramText cuts s into chunks of at most limit runes. It prefers
// newline boundaries and, for HTML, avoids cutting inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			// Newline in the last two thirds of the window.
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if html && end < len(rs) {
			if open := danglingTag(rs[start:end]); open > 1 {
				end = start + open
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// danglingTag returns the index of a '<' that is not closed within rs, or -1.
func danglingTag(rs []rune) int {
	lastOpen, lastClose := -1, -1
	for i, r := range rs {
		switch r {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose {
		return lastOpen
	}
	return -1
}
