package journey

import (
	"regexp"
	"strings"

	"github.com/jornada-io/jornada/pkg/models"
)

// jsRegexRe recognizes operator-supplied patterns written in /pattern/flags
// form, as the journey builder produces them.
var jsRegexRe = regexp.MustCompile(`^/(.+)/([a-z]*)$`)

// Match selects the condition an inbound reply satisfies. Precedence is fixed
// regardless of declaration order: payload, then regex, then keywords, then a
// fallback condition. The boolean is false when nothing matches; the caller
// terminates the contact rather than leaving it stuck.
func Match(conditions []models.Condition, text, payload string) (models.Condition, bool) {
	text = strings.TrimSpace(text)
	payload = strings.TrimSpace(payload)

	if payload != "" {
		for _, cond := range conditions {
			if cond.Type == models.ConditionPayload && matchPayload(cond.Value, payload) {
				return cond, true
			}
		}
	}

	for _, cond := range conditions {
		if cond.Type == models.ConditionRegex && matchRegex(cond.Value, text) {
			return cond, true
		}
	}

	if text != "" {
		for _, cond := range conditions {
			if cond.Type == models.ConditionKeywords && matchKeywords(cond.Value, text) {
				return cond, true
			}
		}
	}

	for _, cond := range conditions {
		if cond.IsFallback {
			return cond, true
		}
	}

	return models.Condition{}, false
}

// TimeoutCondition picks the edge to take when a wait deadline expires: the
// condition flagged as timeout, else the fallback.
func TimeoutCondition(conditions []models.Condition) (models.Condition, bool) {
	for _, cond := range conditions {
		if cond.IsTimeout {
			return cond, true
		}
	}

	for _, cond := range conditions {
		if cond.IsFallback {
			return cond, true
		}
	}

	return models.Condition{}, false
}

// matchPayload tests for an exact, case-sensitive match against any
// |-separated token.
func matchPayload(value, payload string) bool {
	if value == "" {
		return false
	}

	for _, token := range strings.Split(value, "|") {
		token = strings.TrimSpace(token)
		if token != "" && token == payload {
			return true
		}
	}

	return false
}

// matchRegex tests the reply text against an operator-supplied pattern.
// Patterns come from user input; a pattern that does not compile simply never
// matches.
func matchRegex(value, text string) bool {
	if value == "" {
		return false
	}

	pattern := value

	if m := jsRegexRe.FindStringSubmatch(value); m != nil {
		pattern = m[1]

		var flags strings.Builder

		for _, flag := range m[2] {
			switch flag {
			case 'i', 's', 'm':
				flags.WriteRune(flag)
			}
			// g, u and y have no Go equivalent and change nothing for a
			// single-match test.
		}

		if flags.Len() > 0 {
			pattern = "(?" + flags.String() + ")" + pattern
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}

	return re.MatchString(text)
}

// matchKeywords tests for a case-insensitive substring match against any
// |-separated token.
func matchKeywords(value, text string) bool {
	if value == "" {
		return false
	}

	lower := strings.ToLower(text)

	for _, token := range strings.Split(strings.ToLower(value), "|") {
		token = strings.TrimSpace(token)
		if token != "" && strings.Contains(lower, token) {
			return true
		}
	}

	return false
}
