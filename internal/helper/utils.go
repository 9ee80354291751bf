package helper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"legal-researcher/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	thinkRe = regexp.MustCompile(models.ThinkTag)
)

// NewRunID returns a time-ordered identifier so snapshot and run directories
// sort by creation.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// TruncateRunes cuts s to at most n runes and reports whether it cut.
func TruncateRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

// StripThinking drops <think> blocks some reasoning models prepend.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// StripCodeFence returns the body of a response that is a single fenced
// block, or the trimmed input when it is not fenced.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(StripThinking(s))
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		if m := fenceRe.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

// ExtractJSON finds the first JSON value opening with open ('{' or '[') in a
// response that mixes prose and JSON. Fenced blocks are searched first.
// It returns "" when nothing balanced is found.
func ExtractJSON(s string, open byte) string {
	s = StripThinking(s)
	for _, m := range fenceRe.FindAllStringSubmatch(s, -1) {
		if v := balanced(strings.TrimSpace(m[1]), open); v != "" {
			return v
		}
	}
	return balanced(s, open)
}

// balanced scans for the first open byte whose matching close yields valid JSON.
func balanced(s string, open byte) string {
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	for start := strings.IndexByte(s, open); start >= 0; {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(s); i++ {
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
			case open:
				depth++
			case closeCh:
				depth--
			}
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				break
			}
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}
