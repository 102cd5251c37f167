// Package virtual implements an in-process loopback phy.Bus, used by tests
// and by the cmd/lapdmctl "monitor" demo in place of a real radio/serial
// link. Two Bus instances that Connect with the same channel name are
// wired to each other through a shared pair of buffered channels; there is
// no real I/O or network hop.
//
// Adapted from a TCP-broker virtual CAN bus, simplified to an in-process
// link since there is no equivalent here to a shared external broker
// process.
package virtual

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kc1fsz/lapdm/pkg/phy"
)

func init() {
	phy.RegisterInterface("virtual", New)
}

type link struct {
	toA       chan phy.Frame
	toB       chan phy.Frame
	endpoints int
}

var broker = struct {
	mu    sync.Mutex
	links map[string]*link
}{links: make(map[string]*link)}

// Bus is one endpoint of a virtual loopback link.
type Bus struct {
	log        *logrus.Entry
	channel    string
	mu         sync.Mutex
	inbox      chan phy.Frame
	outbox     chan phy.Frame
	listener   phy.FrameListener
	receiveOwn bool
	stopCh     chan struct{}
	running    bool
}

// New constructs a virtual bus endpoint for the named channel. The first
// two endpoints to Connect with the same name are wired to each other; a
// third Connect on the same name is an error.
func New(channel string) (phy.Bus, error) {
	return &Bus{channel: channel, log: logrus.WithField("phy", "virtual").WithField("channel", channel)}, nil
}

// Connect joins the shared link for this bus's channel name.
func (b *Bus) Connect(...any) error {
	broker.mu.Lock()
	defer broker.mu.Unlock()
	l, ok := broker.links[b.channel]
	if !ok {
		l = &link{toA: make(chan phy.Frame, 64), toB: make(chan phy.Frame, 64), endpoints: 1}
		broker.links[b.channel] = l
		b.inbox, b.outbox = l.toA, l.toB
		return nil
	}
	if b.inbox != nil {
		return fmt.Errorf("virtual bus %q: already connected", b.channel)
	}
	if l.endpoints >= 2 {
		return fmt.Errorf("virtual bus %q: link already has two endpoints", b.channel)
	}
	l.endpoints++
	b.inbox, b.outbox = l.toB, l.toA
	return nil
}

// Disconnect stops the receive pump. The underlying channels stay in the
// broker, and this endpoint keeps its place on the link.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		close(b.stopCh)
		b.running = false
	}
	return nil
}

// Send writes frame to the peer endpoint's inbox. With SetReceiveOwn(true)
// it is also delivered locally, useful for single-ended loopback tests.
func (b *Bus) Send(frame phy.Frame) error {
	if b.outbox == nil {
		return fmt.Errorf("virtual bus %q: not connected", b.channel)
	}
	if b.receiveOwn {
		b.mu.Lock()
		l := b.listener
		b.mu.Unlock()
		if l != nil {
			l.Handle(frame)
		}
	}
	select {
	case b.outbox <- frame:
	default:
		b.log.Warn("peer inbox full, dropping frame")
	}
	return nil
}

// Subscribe registers listener and starts the receive pump if not already
// running.
func (b *Bus) Subscribe(listener phy.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	if b.running {
		return nil
	}
	b.stopCh = make(chan struct{})
	b.running = true
	go b.pump()
	return nil
}

// SetReceiveOwn controls whether Send also loops the frame back to this
// endpoint's own listener, independent of the peer delivery.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}

func (b *Bus) pump() {
	for {
		select {
		case <-b.stopCh:
			return
		case f := <-b.inbox:
			b.mu.Lock()
			l := b.listener
			b.mu.Unlock()
			if l != nil {
				l.Handle(f)
			}
		}
	}
}
