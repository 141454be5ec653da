/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

// BulkOperation is one write in a bulk batch. Exactly three variants exist:
// InsertOp, UpdateOp, and DeleteOp. The tagged-union form keeps the
// translator's partitioning exhaustive at compile time.
type BulkOperation interface {
	isBulkOp()
}

// InsertOp inserts one document.
type InsertOp struct {
	Document Document
}

// UpdateOp merges Patch into every record matching Filter.
type UpdateOp struct {
	Filter Filter
	Patch  Document
}

// DeleteOp removes every record matching Filter.
type DeleteOp struct {
	Filter Filter
}

func (InsertOp) isBulkOp() {}
func (UpdateOp) isBulkOp() {}
func (DeleteOp) isBulkOp() {}

// PartitionOps splits a batch by variant, preserving the original relative
// order within each partition. Cross-partition ordering is not preserved by
// the native batch primitives of most backends; partitions execute in the
// fixed order insert, update, delete.
func PartitionOps(ops []BulkOperation) (inserts []InsertOp, updates []UpdateOp, deletes []DeleteOp) {
	for _, op := range ops {
		switch o := op.(type) {
		case InsertOp:
			inserts = append(inserts, o)
		case UpdateOp:
			updates = append(updates, o)
		case DeleteOp:
			deletes = append(deletes, o)
		}
	}
	return inserts, updates, deletes
}
