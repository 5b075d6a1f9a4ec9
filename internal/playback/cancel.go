package playback

import (
	"context"
	"sync"
)

// Controller is a generation-counted, renewable cancellation primitive scoped
// to one session. Every cancellation belongs to a generation; once the
// generation has moved on, cancelling an old token has no effect on the new
// one, so a late Skip can never abort an unrelated track.
//
// Controller is safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	gen      uint64
	canceled bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewController returns a controller at generation 1 with a live token.
func NewController() *Controller {
	c := &Controller{gen: 1}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Token identifies one generation of a [Controller]. The zero Token is never
// canceled.
type Token struct {
	ctrl *Controller
	gen  uint64
	ctx  context.Context
}

// CurrentToken returns the token for the current generation.
func (c *Controller) CurrentToken() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token{ctrl: c, gen: c.gen, ctx: c.ctx}
}

// Cancel marks the current generation canceled. It does not start a new
// generation; call [Controller.Renew] for that.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = true
	c.cancel()
}

// Canceled reports whether the current generation has been canceled.
func (c *Controller) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Generation returns the current generation number.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Renew advances to a fresh, un-canceled generation and returns its token.
// Tokens from earlier generations stay canceled.
func (c *Controller) Renew() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.gen++
	c.canceled = false
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return Token{ctrl: c, gen: c.gen, ctx: c.ctx}
}

// Generation returns the generation this token belongs to.
func (t Token) Generation() uint64 { return t.gen }

// Canceled reports whether the token's generation was canceled or has been
// superseded by a newer one.
func (t Token) Canceled() bool {
	if t.ctrl == nil {
		return false
	}
	t.ctrl.mu.Lock()
	defer t.ctrl.mu.Unlock()
	return t.gen < t.ctrl.gen || t.ctrl.canceled
}

// Cancel cancels the token's generation if it is still current. Cancelling a
// superseded token is a no-op.
func (t Token) Cancel() {
	if t.ctrl == nil {
		return
	}
	t.ctrl.mu.Lock()
	defer t.ctrl.mu.Unlock()
	if t.gen == t.ctrl.gen {
		t.ctrl.canceled = true
		t.ctrl.cancel()
	}
}

// Context returns a context that is done once the token's generation is
// canceled or superseded. Blocking collaborators (the transcoder) use it to
// abandon work promptly.
func (t Token) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}
