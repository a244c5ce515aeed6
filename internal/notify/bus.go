// Package notify turns engine and monitor events into user-facing
// messages.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/pubsub"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Message is one notification payload.
type Message struct {
	Text    string
	IsError bool
	From    domain.StateKey
	To      domain.StateKey
	Path    string
}

// Bus publishes notifications on a pubsub broker. It satisfies the sync
// engine's Notifier.
type Bus struct {
	broker  *pubsub.Broker[Message]
	enabled bool
}

// NewBus creates a Bus. When enabled is false, messages are only logged.
func NewBus(enabled bool) *Bus {
	return &Bus{broker: pubsub.NewBroker[Message](), enabled: enabled}
}

// Subscribe returns a channel of published messages of the given kinds,
// or of every kind when none are given.
func (b *Bus) Subscribe(ctx context.Context, kinds ...pubsub.EventType) <-chan pubsub.Event[Message] {
	return b.broker.Subscribe(ctx, kinds...)
}

// Notify publishes a user-facing message.
func (b *Bus) Notify(message string, isError bool) {
	if isError {
		log.Warn(log.CatNotify, message)
	} else {
		log.Info(log.CatNotify, message)
	}
	b.publish(pubsub.NotificationEvent, Message{Text: message, IsError: isError})
}

// StateChanged announces an applied transition.
func (b *Bus) StateChanged(from, to domain.StateKey) {
	text := fmt.Sprintf("Switched to %s", to)
	if from.IsZero() {
		text = fmt.Sprintf("Detected %s", to)
	}
	b.publish(pubsub.StateChangedEvent, Message{Text: text, From: from, To: to})
}

// Drift announces a live artifact that changed outside of a sync.
func (b *Bus) Drift(title, path string) {
	text := fmt.Sprintf("%s settings changed outside of dockswap", title)
	log.Info(log.CatNotify, text, "path", path)
	b.publish(pubsub.DriftEvent, Message{Text: text, Path: path})
}

// Dropped returns how many deliveries were dropped.
func (b *Bus) Dropped() uint64 {
	return b.broker.Dropped()
}

// Close closes every subscription.
func (b *Bus) Close() {
	b.broker.Close()
}

func (b *Bus) publish(kind pubsub.EventType, m Message) {
	if !b.enabled {
		return
	}
	b.broker.Publish(kind, m)
}

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Printer writes every message from a subscription to w.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Run prints until ctx is cancelled or ch closes.
func (p *Printer) Run(ctx context.Context, ch <-chan pubsub.Event[Message]) {
	pubsub.Listen(ctx, ch, p.print)
}

func (p *Printer) print(e pubsub.Event[Message]) {
	style := infoStyle
	switch {
	case e.Payload.IsError:
		style = errorStyle
	case e.Type == pubsub.StateChangedEvent:
		style = stateStyle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "%s %s\n", e.Timestamp.Format("15:04:05"), style.Render(e.Payload.Text))
}
