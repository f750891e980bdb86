package connection

import (
	"errors"
	"sync"
	"time"
)

var errDial = errors.New("dial tcp: connection refused")

// fakeClock fires timers only when advanced, on the caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing due timers in deadline order.
// Timers armed by a callback fire too if they fall within the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeTransport records every Open and lets the test drive events.
type fakeTransport struct {
	mu      sync.Mutex
	handles []*fakeHandle
	openErr error
}

func (f *fakeTransport) Open(address string, l Listener) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	h := &fakeHandle{address: address, listener: l}
	f.handles = append(f.handles, h)
	return h, nil
}

// Opens returns the number of transport connections created.
func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// Last returns the most recently opened handle.
func (f *fakeTransport) Last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

type fakeHandle struct {
	address  string
	listener Listener

	mu         sync.Mutex
	open       bool
	sent       []string
	closeCalls int
}

func (h *fakeHandle) Send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ErrNotConnected
	}
	h.sent = append(h.sent, string(data))
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	return nil
}

// accept completes the handshake.
func (h *fakeHandle) accept() {
	h.mu.Lock()
	h.open = true
	h.mu.Unlock()
	h.listener.OnOpen()
}

// receive delivers an inbound payload.
func (h *fakeHandle) receive(payload string) {
	h.listener.OnMessage([]byte(payload))
}

// drop delivers the final close event.
func (h *fakeHandle) drop(err error) {
	h.mu.Lock()
	h.open = false
	h.mu.Unlock()
	if err != nil {
		h.listener.OnError(err)
	}
	h.listener.OnClose(err)
}

func (h *fakeHandle) Sent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}

func (h *fakeHandle) Pings() int {
	n := 0
	for _, s := range h.Sent() {
		if s == "ping" {
			n++
		}
	}
	return n
}

func (h *fakeHandle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

// fakeActivity is a minimal ActivitySource.
type fakeActivity struct {
	mu   sync.Mutex
	subs map[int]func(string)
	kind map[int]map[string]bool
	next int
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{
		subs: make(map[int]func(string)),
		kind: make(map[int]map[string]bool),
	}
}

func (a *fakeActivity) Subscribe(signals []string, fn func(string)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.subs[id] = fn
	a.kind[id] = make(map[string]bool)
	for _, s := range signals {
		a.kind[id][s] = true
	}
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
		delete(a.kind, id)
	}
}

func (a *fakeActivity) Notify(signal string) {
	a.mu.Lock()
	var fns []func(string)
	for id, fn := range a.subs {
		if a.kind[id][signal] {
			fns = append(fns, fn)
		}
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(signal)
	}
}

func (a *fakeActivity) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}
