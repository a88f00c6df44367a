package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation rule types for collected press-release fields.
const (
	RuleFree       = "free"
	RuleMoney      = "money"
	RuleEmailPhone = "email_phone"
	RuleMinLen     = "min_len"
)

var ruleRegexps = map[string]*regexp.Regexp{
	RuleMoney:      regexp.MustCompile(`(?i)^\$?\d[\d,\.]*\s?(?:[mk]|million)?$`),
	RuleEmailPhone: regexp.MustCompile(`(?i)^.+@.+\..+.*\+?[0-9][0-9\-\s]{6,}$`),
}

var ruleHints = map[string]string{
	RuleMoney:      "Use a currency symbol and magnitude, e.g. $3.5 M.",
	RuleEmailPhone: "Format: Name – email – phone (+country).",
}

// Rule describes how a field value is validated.
type Rule struct {
	Type   string
	MinLen int
}

// RuleForField infers a validation rule from the field name when the
// conversation flow does not specify one.
func RuleForField(name string) Rule {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email") || strings.Contains(lower, "contact"):
		return Rule{Type: RuleEmailPhone}
	case strings.Contains(lower, "money") || strings.Contains(lower, "amount"):
		return Rule{Type: RuleMoney}
	default:
		return Rule{Type: RuleFree}
	}
}

// Validate checks a value against a rule. It returns whether the value is
// accepted and, when rejected, a hint the assistant can relay to the user.
func Validate(rule Rule, value string) (bool, string) {
	if rule.MinLen > 0 && len(value) < rule.MinLen {
		return false, fmt.Sprintf("Answer must be at least %d characters.", rule.MinLen)
	}
	switch rule.Type {
	case "", RuleFree, RuleMinLen:
		return true, ""
	}
	rx, ok := ruleRegexps[rule.Type]
	if ok && rx.MatchString(strings.TrimSpace(value)) {
		return true, ""
	}
	if hint, ok := ruleHints[rule.Type]; ok {
		return false, hint
	}
	return false, "Please rephrase."
}
