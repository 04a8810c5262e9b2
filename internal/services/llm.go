package services

import (
	"context"

	"github.com/talecraft/turnengine/pkg/chat"
)

// ModelService is the raw model-inference transport. The turn pipeline
// treats it as a black box returning the verbatim reply text plus the
// top-level JSON object extracted from it (nil when none was found).
//
// Transports do not retry validation failures; that belongs to the
// orchestrator. Transport-level retries of network errors, if any, stay
// inside the implementation.
type ModelService interface {
	// InitModel prepares the model on startup (no-op for hosted APIs).
	InitModel(ctx context.Context, modelName string) error

	// Infer runs one inference over the prompt messages.
	Infer(ctx context.Context, messages []chat.Message) (*chat.Reply, error)
}
