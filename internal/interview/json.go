package interview

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// cleanJSON strips markdown fences and slices out the outermost JSON
// object or array from free-text model output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.TrimSpace(text)

	objStart := strings.IndexAny(text, "{[")
	if objStart < 0 {
		return text
	}
	var closer string
	if text[objStart] == '{' {
		closer = "}"
	} else {
		closer = "]"
	}
	if end := strings.LastIndex(text, closer); end > objStart {
		return text[objStart : end+1]
	}
	return text[objStart:]
}

// repairTruncated attempts a single bracket-balancing repair of JSON that
// was cut off mid-generation: an unterminated string is closed, a dangling
// fragment after the last complete value is trimmed, and any still-open
// objects and arrays are closed in reverse order.
func repairTruncated(text string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}

	text = strings.TrimRight(text, " \t\r\n")
	text = strings.TrimSuffix(text, ",")
	if strings.HasSuffix(text, ":") {
		text += "null"
	}

	for i := len(stack) - 1; i >= 0; i-- {
		text += string(stack[i])
	}
	return text
}

// decodeModelJSON parses free-text model output into v. When the backend
// signaled truncation (stop reason max_tokens) a single bracket-balancing
// repair is attempted before giving up; without that signal a parse
// failure is a hard failure for the call.
func decodeModelJSON(text string, truncated bool, v any) error {
	cleaned := cleanJSON(text)
	err := json.Unmarshal([]byte(cleaned), v)
	if err == nil {
		return nil
	}
	if !truncated {
		return eris.Wrap(err, "interview: parse model JSON")
	}

	repaired := repairTruncated(cleaned)
	if repairErr := json.Unmarshal([]byte(repaired), v); repairErr != nil {
		return eris.Wrap(err, "interview: parse model JSON after repair")
	}
	return nil
}
