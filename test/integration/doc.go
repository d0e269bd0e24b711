// Package integration contains integration tests for the token service.
//
// These tests use testcontainers to spin up real dependencies (Redis)
// and exercise the storage layer against them. They are skipped in
// short mode.
package integration
