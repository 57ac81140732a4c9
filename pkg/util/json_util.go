package util

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJsonObject returns the first complete JSON object found in text.
// Markdown fences are searched first, then the raw text. Braces inside
// string literals are ignored while matching.
func ExtractJsonObject(text string) (string, bool) {
	if m := fencedBlock.FindStringSubmatch(text); len(m) > 1 {
		if obj, ok := balancedObject(m[1]); ok {
			return obj, true
		}
	}
	return balancedObject(text)
}

func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start != -1 {
		if end := matchBrace(text, start); end != -1 {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
