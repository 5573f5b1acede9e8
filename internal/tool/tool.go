// Package tool defines the closed capability set available to reasoning runs.
// Tools are registered once at startup; there are no dynamic or ad-hoc tools,
// and every tool in this set is read-only.
package tool

import (
	"context"
	"encoding/json"

	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Result is one tool invocation's outcome.
type Result struct {
	Content   string
	Citations []evidence.Citation
}

// Tool is a single registered capability.
type Tool interface {
	// Name is the stable identifier the model selects by.
	Name() string
	// Description tells the model when and how to use the tool.
	Description() string
	// Validate checks the raw input against the tool's schema.
	Validate(input json.RawMessage) error
	// Invoke runs the tool. Input has passed Validate.
	Invoke(ctx context.Context, input json.RawMessage) (Result, error)
}
