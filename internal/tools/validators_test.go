package tools

import "testing"

func TestValidateMoney(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"$3.5M", true},
		{"$3.5 M", true},
		{"3500000", true},
		{"$1,200,000", true},
		{"2.5 million", true},
		{"500k", true},
		{"a lot of money", false},
		{"", false},
	}
	for _, tt := range tests {
		got, hint := Validate(Rule{Type: RuleMoney}, tt.value)
		if got != tt.want {
			t.Errorf("Validate(money, %q) = %v, want %v", tt.value, got, tt.want)
		}
		if !tt.want && hint != "Use a currency symbol and magnitude, e.g. $3.5 M." {
			t.Errorf("hint for %q = %q", tt.value, hint)
		}
	}
}

func TestValidateEmailPhone(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"Jane Doe jane@acme.com +1 555 0111", true},
		{"bob@startup.io 555-0100-200", true},
		{"no contact info here", false},
		{"jane@acme.com", false},
	}
	for _, tt := range tests {
		got, hint := Validate(Rule{Type: RuleEmailPhone}, tt.value)
		if got != tt.want {
			t.Errorf("Validate(email_phone, %q) = %v, want %v", tt.value, got, tt.want)
		}
		if !tt.want && hint != "Format: Name – email – phone (+country)." {
			t.Errorf("hint for %q = %q", tt.value, hint)
		}
	}
}

func TestValidateMinLen(t *testing.T) {
	ok, hint := Validate(Rule{Type: RuleMinLen, MinLen: 10}, "short")
	if ok {
		t.Error("short value accepted")
	}
	if hint != "Answer must be at least 10 characters." {
		t.Errorf("hint = %q", hint)
	}

	ok, _ = Validate(Rule{Type: RuleMinLen, MinLen: 10}, "long enough answer")
	if !ok {
		t.Error("long value rejected")
	}
}

func TestValidateFreeAcceptsAnything(t *testing.T) {
	for _, value := range []string{"", "anything", "123"} {
		if ok, _ := Validate(Rule{Type: RuleFree}, value); !ok {
			t.Errorf("Validate(free, %q) rejected", value)
		}
	}
}

func TestValidateUnknownRuleRejectsWithGenericHint(t *testing.T) {
	ok, hint := Validate(Rule{Type: "mystery"}, "value")
	if ok {
		t.Error("unknown rule accepted")
	}
	if hint != "Please rephrase." {
		t.Errorf("hint = %q", hint)
	}
}

func TestRuleForField(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"media_contact", RuleEmailPhone},
		{"contact_email", RuleEmailPhone},
		{"funding_amount", RuleMoney},
		{"money_raised", RuleMoney},
		{"headline", RuleFree},
		{"quotes", RuleFree},
	}
	for _, tt := range tests {
		if got := RuleForField(tt.field); got.Type != tt.want {
			t.Errorf("RuleForField(%q) = %q, want %q", tt.field, got.Type, tt.want)
		}
	}
}
