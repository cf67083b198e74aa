// Package testutil provides testing utilities for posbridge, including an
// in-memory POS API server for exercising the client, extractor, and
// protocol handler without a real endpoint.
package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
