package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var fencedRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// DecodeJSON parses a model reply into v. It tries, in order: the whole
// reply, each fenced code block, then the outermost JSON array or object
// found in the text.
func DecodeJSON(reply string, v any) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return eris.New("llm: empty reply")
	}

	if json.Unmarshal([]byte(reply), v) == nil {
		return nil
	}

	for _, m := range fencedRe.FindAllStringSubmatch(reply, -1) {
		if json.Unmarshal([]byte(strings.TrimSpace(m[1])), v) == nil {
			return nil
		}
	}

	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		start := strings.IndexByte(reply, pair[0])
		end := strings.LastIndexByte(reply, pair[1])
		if start >= 0 && end > start {
			if json.Unmarshal([]byte(reply[start:end+1]), v) == nil {
				return nil
			}
		}
	}

	snippet := reply
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return eris.Errorf("llm: no JSON found in reply: %q", snippet)
}
