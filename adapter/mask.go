/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

// ApplyMask implements the shared masking policy for all backends: records
// where the field is missing, nil, or an empty string are skipped and not
// counted, and a mask function failure surfaces as ErrValidation so the
// backend can abort the remaining scan.
//
// The returned bool reports whether the value should be persisted.
func ApplyMask(backend string, fn MaskFunc, value interface{}, present bool) (interface{}, bool, error) {
	if !present || value == nil {
		return nil, false, nil
	}
	if s, ok := value.(string); ok && s == "" {
		return nil, false, nil
	}
	masked, err := fn(value)
	if err != nil {
		return nil, false, ValidationErr(backend, "mask_field", err)
	}
	return masked, true, nil
}
