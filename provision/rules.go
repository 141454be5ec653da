/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package provision

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ista-data/ista/adapter"
)

// Built-in mask rules. A rule receives the current field value and returns
// the replacement; values that cannot be coerced to string are redacted.
var rules = map[string]adapter.MaskFunc{
	"email":  maskEmail,
	"phone":  maskPhone,
	"redact": maskRedact,
}

// Rule returns a mask function by name.
func Rule(name string) (adapter.MaskFunc, error) {
	fn, ok := rules[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown mask rule %q (have %v)", name, RuleNames())
	}
	return fn, nil
}

// FieldRule resolves a mask function for a field. An explicit rule name
// wins; otherwise the field name picks one.
func FieldRule(field, rule string) (adapter.MaskFunc, error) {
	if rule != "" {
		return Rule(rule)
	}
	return ruleForField(field), nil
}

// RuleNames lists the built-in rules in lexical order.
func RuleNames() []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ruleForField picks a rule from the field name when the dataset does not
// name one explicitly.
func ruleForField(field string) adapter.MaskFunc {
	lower := strings.ToLower(field)
	switch {
	case strings.Contains(lower, "email"):
		return maskEmail
	case strings.Contains(lower, "phone"):
		return maskPhone
	default:
		return maskRedact
	}
}

// maskEmail keeps the first character of the local part and the full domain,
// so masked data still looks like an address.
func maskEmail(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return maskRedact(v)
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return "****", nil
	}
	return s[:1] + "****" + s[at:], nil
}

// maskPhone replaces all but the last two digits with X, preserving
// formatting characters.
func maskPhone(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return maskRedact(v)
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	seen := 0
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen++
			if seen <= digits-2 {
				r = 'X'
			}
		}
		out = append(out, r)
	}
	return string(out), nil
}

func maskRedact(interface{}) (interface{}, error) {
	return "[REDACTED]", nil
}
