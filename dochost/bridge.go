package dochost

import (
	"context"
	"time"

	"github.com/hazyhaar/docforge/snapshot"
)

// Message types posted from the embedded content context to the host.
const (
	MsgContent = "content"
	MsgError   = "error"
)

// Message is one host-bound bridge message: a serialized snapshot or an
// error report. One-directional, content → host. State carries the live
// form-control values alongside the markup, since a browser's outerHTML
// does not reflect property-level edits on its own.
type Message struct {
	Type    string             `json:"type"`
	HTML    string             `json:"html,omitempty"`
	State   snapshot.FormState `json:"form_state,omitempty"`
	Message string             `json:"message,omitempty"`
}

// DefaultGracePeriod is how long the host waits for a snapshot message after
// requesting one. The channel offers no delivery acknowledgment, so this is
// a fixed wait, not a blocking ack.
const DefaultGracePeriod = 300 * time.Millisecond

// DefaultAutoCaptureInterval is the period of the injected auto-capture
// timer pushing live state to the host as a durability safety net.
const DefaultAutoCaptureInterval = 1500 * time.Millisecond

// Bridge is the message channel between the host and an embedded content
// context that owns the live DOM.
type Bridge interface {
	// RequestSnapshot asks the embedded content to serialize itself. The
	// result, if any, arrives later on Messages.
	RequestSnapshot(ctx context.Context) error
	// Messages delivers host-bound messages.
	Messages() <-chan Message
}

// ChannelBridge is an in-process Bridge backed by buffered channels. The
// receiving side of a webview (or a test) feeds it with Post.
type ChannelBridge struct {
	requests chan struct{}
	messages chan Message
}

// NewChannelBridge creates a ChannelBridge with the given buffer size.
func NewChannelBridge(buffer int) *ChannelBridge {
	if buffer <= 0 {
		buffer = 8
	}
	return &ChannelBridge{
		requests: make(chan struct{}, buffer),
		messages: make(chan Message, buffer),
	}
}

func (b *ChannelBridge) RequestSnapshot(ctx context.Context) error {
	select {
	case b.requests <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// request buffer full: the content side is already draining requests
		return nil
	}
}

func (b *ChannelBridge) Messages() <-chan Message { return b.messages }

// Requests exposes the content-side view of serialization requests.
func (b *ChannelBridge) Requests() <-chan struct{} { return b.requests }

// Post delivers a message to the host. Drops when the buffer is full, which
// matches the fire-and-forget nature of the underlying channel.
func (b *ChannelBridge) Post(m Message) {
	select {
	case b.messages <- m:
	default:
	}
}
