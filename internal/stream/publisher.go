// Package stream exposes the conversation currently being composed as an
// observable sequence of full-history snapshots. It models the single live
// conversation, not the durable multi-chat archive in internal/chat; bridging
// the two is the caller's responsibility.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/chatvault/chatvault/internal/ai"
	"github.com/chatvault/chatvault/internal/chat"
)

const (
	// SystemPreamble seeds every live conversation.
	SystemPreamble = "You are a helpful assistant."
	// FallbackResponse is shown when the provider succeeds but returns an
	// empty response. Hard provider failures are surfaced as errors instead.
	FallbackResponse = "Sorry, there was a problem!"

	historyTopic = "chat.history"
)

// Publisher holds the live conversation history and fans out a snapshot of it
// to every subscriber on each change, with replay-latest semantics: a new
// subscriber receives the current history immediately.
type Publisher struct {
	completer ai.Completer
	pubsub    *gochannel.GoChannel
	now       func() time.Time

	mu      sync.Mutex
	history []chat.Message
}

func NewPublisher(completer ai.Completer) *Publisher {
	p := &Publisher{
		completer: completer,
		pubsub:    gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
		now:       time.Now,
	}
	p.history = []chat.Message{{
		Role:      chat.RoleSystem,
		Content:   SystemPreamble,
		Timestamp: p.now(),
	}}
	return p
}

// Subscribe returns a channel of full-history snapshots. The current history
// is delivered first, then every subsequent history on each change. The
// channel closes when ctx is cancelled or the publisher is closed.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan []chat.Message, error) {
	msgs, err := p.pubsub.Subscribe(ctx, historyTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// Snapshot after subscribing so no update can fall between the two. An
	// update published in that window is delivered twice, which is harmless:
	// every delivery is a full-history snapshot.
	current := p.History()

	out := make(chan []chat.Message, 1)
	go func() {
		defer close(out)
		select {
		case out <- current:
		case <-ctx.Done():
			return
		}
		for m := range msgs {
			var history []chat.Message
			if err := json.Unmarshal(m.Payload, &history); err != nil {
				log.Warn().Err(err).Msg("failed to decode history snapshot")
				m.Nack()
				continue
			}
			m.Ack()
			select {
			case out <- history:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// History returns a copy of the current conversation history.
func (p *Publisher) History() []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chat.Message, len(p.history))
	copy(out, p.history)
	return out
}

// Send appends the prompt as a user message, asks the completion provider for
// the assistant's response, and appends that too, publishing the history after
// each append. On provider failure the user message stays appended so the
// typed prompt is not lost; retrying is up to the caller.
func (p *Publisher) Send(ctx context.Context, prompt string) error {
	p.mu.Lock()
	p.history = append(p.history, chat.Message{
		Role:      chat.RoleUser,
		Content:   prompt,
		Timestamp: p.now(),
	})
	current := p.snapshotLocked()
	p.mu.Unlock()
	p.publish(current)

	response, err := p.completer.Complete(ctx, current)
	if err != nil {
		return fmt.Errorf("%w: %v", ai.ErrCompletionFailed, err)
	}

	response = strings.TrimSpace(response)
	if response == "" {
		response = FallbackResponse
	}

	p.mu.Lock()
	p.history = append(p.history, chat.Message{
		Role:      chat.RoleAssistant,
		Content:   response,
		Timestamp: p.now(),
	})
	current = p.snapshotLocked()
	p.mu.Unlock()
	p.publish(current)

	return nil
}

// Close shuts down the fan-out and closes all subscriber channels.
func (p *Publisher) Close() error {
	return p.pubsub.Close()
}

func (p *Publisher) snapshotLocked() []chat.Message {
	out := make([]chat.Message, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Publisher) publish(history []chat.Message) {
	b, err := json.Marshal(history)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode history snapshot")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	if err := p.pubsub.Publish(historyTopic, msg); err != nil {
		log.Warn().Err(err).Msg("failed to publish history snapshot")
	}
}
