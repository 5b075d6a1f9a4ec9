// Package mock provides in-memory mock implementations of the [audio.Platform]
// and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	conn, err := platform.Connect(ctx, audio.Room{GuildID: "42", ChannelID: "voice"})
//	// ... exercise code that writes to conn ...
//	platform.Connections()[0].BytesWritten()
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/songbird/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported fields before use; inspect the counters after.
type Connection struct {
	mu sync.Mutex

	// ID is returned by [Connection.StreamID].
	ID string

	// WriteError, when non-nil, is returned by every Write.
	WriteError error

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountWrite records how many times Write was called.
	CallCountWrite int

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	written   int64
	closed    bool
	destroyed func(string)
}

// StreamID implements [audio.Connection].
func (c *Connection) StreamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ID
}

// Write implements [audio.Connection]. It returns [audio.ErrClosed] after
// Disconnect, WriteError if set, and otherwise counts the bytes.
func (c *Connection) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountWrite++
	if c.closed {
		return 0, audio.ErrClosed
	}
	if c.WriteError != nil {
		return 0, c.WriteError
	}
	c.written += int64(len(p))
	return len(p), nil
}

// Flush implements [audio.Connection].
func (c *Connection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountFlush++
	if c.closed {
		return audio.ErrClosed
	}
	return nil
}

// OnDestroyed implements [audio.Connection].
func (c *Connection) OnDestroyed(cb func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = cb
}

// Disconnect implements [audio.Connection]. Only the first call closes the
// connection and fires the destroyed callback; every call is counted.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.CallCountDisconnect++
	first := !c.closed
	c.closed = true
	cb := c.destroyed
	err := c.DisconnectError
	c.mu.Unlock()

	if first && cb != nil {
		go cb(c.ID)
	}
	return err
}

// Destroy simulates the transport going away: the connection closes and the
// destroyed callback fires without Disconnect being called.
func (c *Connection) Destroy() {
	c.mu.Lock()
	c.closed = true
	cb := c.destroyed
	c.mu.Unlock()
	if cb != nil {
		cb(c.ID)
	}
}

// SetWriteError replaces WriteError under the mock's lock.
func (c *Connection) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteError = err
}

// Closed reports whether the connection has been disconnected or destroyed.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

// BytesWritten returns the total number of bytes accepted by Write.
func (c *Connection) BytesWritten() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// Room is the room argument passed to Connect.
	Room audio.Room
}

// Platform is a mock implementation of [audio.Platform]. Each successful
// Connect returns a fresh [Connection] with a sequential stream id.
type Platform struct {
	mu sync.Mutex

	// ConnectError is the error returned by Connect. While set, no
	// connection is created.
	ConnectError error

	// ConnectHook, if set, runs at the start of Connect without holding the
	// mock's lock. Tests use it to block or observe connects.
	ConnectHook func(ctx context.Context, room audio.Room)

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall

	conns []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, room audio.Room) (audio.Connection, error) {
	p.mu.Lock()
	hook := p.ConnectHook
	p.mu.Unlock()
	if hook != nil {
		hook(ctx, room)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Room: room})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	c := &Connection{ID: fmt.Sprintf("%s:%s:%d", room.GuildID, room.ChannelID, len(p.conns)+1)}
	p.conns = append(p.conns, c)
	return c, nil
}

// SetConnectError replaces ConnectError under the mock's lock.
func (p *Platform) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectError = err
}

// Connections returns the connections created so far, oldest first.
func (p *Platform) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, len(p.conns))
	copy(out, p.conns)
	return out
}

// ConnectCount returns the number of Connect invocations.
func (p *Platform) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}
