package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"
)

// Hooks are the gateway entry points the message layer reports writes through.
type Hooks interface {
	NotifyMessageCreated(ctx context.Context, msg domain.MessagePayload) error
	NotifyMessageUpdated(ctx context.Context, ev domain.MessageUpdated) error
	NotifyMessageDeleted(ctx context.Context, ev domain.MessageDeleted) error
	NotifyReactionAdded(ctx context.Context, ev domain.ReactionEvent) error
	NotifyReactionRemoved(ctx context.Context, ev domain.ReactionEvent) error
	NotifyMembershipChanged(ctx context.Context, identityID, channelID string) error
}

var errUnhandled = errors.New("unhandled stream event")

// EventWorker consumes the message-event stream and hands each entry to the
// gateway hooks.
type EventWorker struct {
	log      *slog.Logger
	queue    contracts.MessageQueue
	hooks    Hooks
	stream   string
	conGroup string
}

func NewEventWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	hooks Hooks,
	stream, conGroup string,
) *EventWorker {
	return &EventWorker{
		log:      log,
		queue:    queue,
		hooks:    hooks,
		stream:   stream,
		conGroup: conGroup,
	}
}

var _ contracts.AsyncWorker = (*EventWorker)(nil)

func (w *EventWorker) Run(ctx context.Context) error {
	if err := w.queue.SubscribeToStream(ctx, w.stream, w.conGroup, w.ProcessEvent); err != nil {
		w.log.ErrorContext(ctx, "worker - run - subscribe to stream failed", "stream", w.stream, "group", w.conGroup, logging.Err(err))
		return err
	}
	w.log.InfoContext(ctx, "worker - run - subscribe to stream success", "stream", w.stream, "group", w.conGroup)
	return nil
}

// ProcessEvent dispatches one entry. Entries that cannot be decoded are
// acknowledged and dropped. A failing hook leaves the entry unacknowledged;
// the queue's reclaim pass hands it over again once it has been idle long
// enough.
func (w *EventWorker) ProcessEvent(ctx context.Context, entryID string, raw []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		w.log.ErrorContext(ctx, "worker - process event - wrong payload", "entry_id", entryID, logging.Err(err))
		w.finish(ctx, entryID)
		return err
	}
	err := w.dispatch(ctx, env)
	switch {
	case errors.Is(err, errUnhandled), errors.Is(err, domain.ErrMalformedEvent):
		w.log.WarnContext(ctx, "worker - process event - dropped", "entry_id", entryID, logging.Event(env.Event), logging.Err(err))
		w.finish(ctx, entryID)
		return err
	case err != nil:
		w.log.ErrorContext(ctx, "worker - process event - hook failed", "entry_id", entryID, logging.Event(env.Event), logging.Err(err))
		return err
	}
	w.log.DebugContext(ctx, "worker - process event - delivered", "entry_id", entryID, logging.Event(env.Event))
	return w.finish(ctx, entryID)
}

func (w *EventWorker) dispatch(ctx context.Context, env domain.Envelope) error {
	switch env.Event {
	case domain.EventMessageCreated:
		var msg domain.MessagePayload
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		return w.hooks.NotifyMessageCreated(ctx, msg)
	case domain.EventMessageUpdated:
		var ev domain.MessageUpdated
		if err := decode(env.Data, &ev); err != nil {
			return err
		}
		return w.hooks.NotifyMessageUpdated(ctx, ev)
	case domain.EventMessageDeleted:
		var ev domain.MessageDeleted
		if err := decode(env.Data, &ev); err != nil {
			return err
		}
		return w.hooks.NotifyMessageDeleted(ctx, ev)
	case domain.EventReactionAdded, domain.EventReactionRemoved:
		var ev domain.ReactionEvent
		if err := decode(env.Data, &ev); err != nil {
			return err
		}
		if env.Event == domain.EventReactionAdded {
			return w.hooks.NotifyReactionAdded(ctx, ev)
		}
		return w.hooks.NotifyReactionRemoved(ctx, ev)
	case domain.EventMembershipChanged:
		var ev domain.MembershipChanged
		if err := decode(env.Data, &ev); err != nil {
			return err
		}
		return w.hooks.NotifyMembershipChanged(ctx, ev.IdentityID, ev.ChannelID)
	}
	return fmt.Errorf("%w: %q", errUnhandled, env.Event)
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(domain.ErrMalformedEvent, err)
	}
	return nil
}

// finish acknowledges (XACK) and then deletes (XDEL) the entry.
func (w *EventWorker) finish(ctx context.Context, entryID string) error {
	if err := w.queue.AcknowledgeMessage(ctx, w.stream, w.conGroup, entryID); err != nil {
		w.log.ErrorContext(ctx, "worker - process event - acknowledge message failed", "entry_id", entryID, logging.Err(err))
		return err
	}
	if err := w.queue.DeleteMessage(ctx, w.stream, entryID); err != nil {
		// Already acknowledged; the stream cap trims it eventually.
		w.log.ErrorContext(ctx, "worker - process event - delete message failed", "entry_id", entryID, logging.Err(err))
	}
	return nil
}
