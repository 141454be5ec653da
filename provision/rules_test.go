/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleNames(t *testing.T) {
	assert.Equal(t, []string{"email", "phone", "redact"}, RuleNames())
	_, err := Rule("rot13")
	assert.Error(t, err)
}

func TestMaskEmail(t *testing.T) {
	fn, err := Rule("email")
	require.NoError(t, err)

	out, err := fn("ada.lovelace@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a****@example.com", out)

	out, err = fn("not-an-address")
	require.NoError(t, err)
	assert.Equal(t, "****", out)

	// Non-string values fall back to redaction.
	out, err = fn(42)
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", out)
}

func TestMaskPhone(t *testing.T) {
	fn, err := Rule("phone")
	require.NoError(t, err)

	out, err := fn("+1 (555) 867-5309")
	require.NoError(t, err)
	assert.Equal(t, "+X (XXX) XXX-XX09", out)
}

func TestMaskRedact(t *testing.T) {
	fn, err := Rule("redact")
	require.NoError(t, err)
	out, err := fn("anything")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", out)
}

func TestRuleForField(t *testing.T) {
	out, _ := ruleForField("contact_email")("x@y.z")
	assert.Equal(t, "x****@y.z", out)
	out, _ = ruleForField("phone_number")("12345")
	assert.Equal(t, "XXX45", out)
	out, _ = ruleForField("ssn")("123-45-6789")
	assert.Equal(t, "[REDACTED]", out)
}
