/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package lpm

import "errors"

var (
	// ErrInvalidPrefix reports a malformed insertion: a length outside
	// [0, width] or a key with host bits set below the prefix length.
	ErrInvalidPrefix = errors.New("invalid prefix")

	// ErrOutOfOrderInsertion reports an insertion whose prefix length is
	// smaller than a previously inserted one. Tries are filled in
	// non-decreasing prefix length so that later insertions are always at
	// least as specific as earlier ones.
	ErrOutOfOrderInsertion = errors.New("out of order insertion")

	// ErrDuplicateInsertion reports that an exact (key, length) pair was
	// inserted twice. The value is overwritten, last writer wins; the error
	// is returned so callers can log or count the collision.
	ErrDuplicateInsertion = errors.New("duplicate prefix insertion")

	// ErrUninitialized reports a query against a Flat that was never built.
	ErrUninitialized = errors.New("query against unbuilt structure")

	// ErrBranchFactor reports a branching factor outside [1, 8].
	ErrBranchFactor = errors.New("branching factor out of range")

	// ErrGeometryMismatch reports a Build between structures constructed
	// with different branching factors.
	ErrGeometryMismatch = errors.New("branching factor mismatch")
)
