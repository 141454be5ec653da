/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseBufferNewestFirst(t *testing.T) {
	rb := NewReverseBuffer(0)
	for i := 1; i <= 3; i++ {
		_, err := fmt.Fprintf(rb, "line %d\n", i)
		require.NoError(t, err)
	}
	assert.Equal(t, "line 3\nline 2\nline 1\n", rb.String())
}

func TestReverseBufferTruncates(t *testing.T) {
	rb := NewReverseBuffer(30)
	for i := 0; i < 10; i++ {
		_, err := fmt.Fprintf(rb, "entry-%d\n", i)
		require.NoError(t, err)
	}
	out := rb.String()
	assert.LessOrEqual(t, len(out), 30)
	assert.True(t, strings.HasPrefix(out, "entry-9\n"), "newest entry always survives")
	assert.True(t, strings.HasSuffix(out, "\n"), "no partial line at the end")
}
