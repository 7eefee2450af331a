//go:build tools

package tools

// Tracks tool dependencies used by 'go generate' but not imported by
// application code, so 'go mod tidy' keeps them.

import (
	_ "go.uber.org/mock/mockgen"
)
