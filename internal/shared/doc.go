// Package shared provides common utilities and test helpers used across the
// emicli codebase. It serves as a central location for functionality that
// doesn't belong to any specific domain or architectural layer.
//
// # Structure
//
// The package is organized into the following components:
//
// - testutil: Testing utilities, currently the slog capture handler
//
// # Usage Guidelines
//
// This package should only contain:
//
// 1. Test utilities used by multiple packages
// 2. Generic helper functions with no domain-specific logic
//
// It should NOT contain:
//
// 1. Business logic or domain-specific code
// 2. External dependencies beyond the standard library
// 3. Circular dependencies with other internal packages
//
// # Test Utilities
//
// The testutil subpackage provides a capturing slog handler so tests can
// assert on the log records a component emits:
//
//	logger, logs := testutil.NewTestLogger(t)
//	component.DoWork(logger)
//	assert.True(t, logs.ContainsMessage("Source fetch failed"))
package shared
