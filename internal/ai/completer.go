// Package ai provides completion providers: given an ordered message history,
// they return the assistant's next message.
package ai

import (
	"context"
	"errors"

	"github.com/chatvault/chatvault/internal/chat"
)

// ErrCompletionFailed means the provider call failed or returned an unusable
// response. An empty but successful response is not a failure; callers
// substitute a fallback message for those.
var ErrCompletionFailed = errors.New("completion failed")

// Completer produces the next assistant message for a conversation.
type Completer interface {
	// Complete returns the assistant's response text for the given history.
	// Implementations return the raw text; trimming and empty-response
	// fallbacks are the caller's concern.
	Complete(ctx context.Context, history []chat.Message) (string, error)
}
