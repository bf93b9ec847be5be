package statestream

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// CloseJSON turns a truncated JSON document into the longest valid prefix
// it can find, closing any open string, array or object. It returns false
// when nothing usable remains.
func CloseJSON(partial string) (string, bool) {
	s := strings.TrimSpace(partial)
	for len(s) > 0 {
		if candidate := closeOnce(s); gjson.Valid(candidate) {
			return candidate, true
		}
		_, size := utf8.DecodeLastRuneInString(s)
		s = strings.TrimRightFunc(s[:len(s)-size], isSpace)
	}
	return "", false
}

func closeOnce(s string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.Grow(len(s) + len(stack) + 6)
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		s = strings.TrimRightFunc(s, isSpace)
		s = strings.TrimSuffix(s, ",")
		b.WriteString(s)
		if strings.HasSuffix(s, ":") {
			b.WriteString("null")
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
