/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package logger

import (
	"bytes"
	"sync"
)

// ReverseBuffer prepends each write, so reading yields the newest entry
// first. Once maxSize is exceeded the oldest entries fall off the end.
type ReverseBuffer struct {
	mut     sync.Mutex
	buf     bytes.Buffer
	maxSize int
}

func NewReverseBuffer(maxSize int) *ReverseBuffer {
	return &ReverseBuffer{maxSize: maxSize}
}

// Write prepends p to the buffer.
func (rb *ReverseBuffer) Write(p []byte) (int, error) {
	rb.mut.Lock()
	defer rb.mut.Unlock()

	old := make([]byte, rb.buf.Len())
	copy(old, rb.buf.Bytes())
	rb.buf.Reset()

	if _, err := rb.buf.Write(p); err != nil {
		return 0, err
	}
	keep := old
	if rb.maxSize > 0 && len(p)+len(old) > rb.maxSize {
		keep = old[:max(0, rb.maxSize-len(p))]
		// Drop the partial line at the truncated end.
		if i := bytes.LastIndexByte(keep, '\n'); i >= 0 {
			keep = keep[:i+1]
		} else {
			keep = nil
		}
	}
	if _, err := rb.buf.Write(keep); err != nil {
		return len(p), err
	}
	return len(p), nil
}

func (rb *ReverseBuffer) String() string {
	rb.mut.Lock()
	defer rb.mut.Unlock()
	return rb.buf.String()
}
