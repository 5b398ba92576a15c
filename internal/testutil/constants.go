// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestConcurrency is the worker count used where call order does not matter
	TestConcurrency = 4

	// TestTableCount is a common number of test tables to create
	TestTableCount = 10
)

