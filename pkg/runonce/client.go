package runonce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/bedrock/pkg/apperr"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

// Sender delivers a message to the primary. *ipc.Conn implements it.
type Sender interface {
	Send(m ipc.Message) error
}

// Func is the unit of work executed by the owning worker.
type Func func(ctx context.Context) error

// Client is the worker-side half of the run-once protocol.
type Client struct {
	sender  Sender
	pending map[string]chan *ipc.RunOnce
	flights map[string]*flight
	err     error
	group   singleflight.Group
	mu      sync.Mutex
}

// NewClient creates a client that talks to the primary through sender.
func NewClient(sender Sender) *Client {
	return &Client{
		sender:  sender,
		pending: make(map[string]chan *ipc.RunOnce),
		flights: make(map[string]*flight),
	}
}

// Do runs fn at most once across the cluster for id.
// When another worker owns id, Do waits for its result; a failure there is
// returned as an *apperr.Error carrying the original name and details.
// The owner gets its own error back in that same form.
// Concurrent calls for the same id within this process share one request;
// each of them stops waiting when its own ctx is done.
func (c *Client) Do(ctx context.Context, id string, fn Func, opts ...Option) error {
	if id == "" {
		return ErrEmptyID
	}
	if fn == nil {
		return ErrNilFunc
	}

	var options ipc.RunOnceOptions
	for _, opt := range opts {
		opt(&options)
	}

	f := c.join(ctx, id)
	defer c.leave(id, f)

	ch := c.group.DoChan(id, func() (any, error) {
		return nil, c.do(f.ctx, id, fn, options)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flight is the context shared by the callers of one id. It is canceled
// once every caller has stopped waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	callers int
}

func (c *Client) join(ctx context.Context, id string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[id]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[id] = f
	}
	f.callers++
	return f
}

func (c *Client) leave(id string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.callers--
	if f.callers > 0 {
		return
	}
	f.cancel()
	if c.flights[id] == f {
		delete(c.flights, id)
	}
}

func (c *Client) do(ctx context.Context, id string, fn Func, options ipc.RunOnceOptions) error {
	ch, err := c.register(id)
	if err != nil {
		return err
	}
	defer c.unregister(id, ch)

	if err := c.sender.Send(&ipc.RunOnce{ID: id, Options: options}); err != nil {
		return errors.Join(ErrSend, err)
	}

	var res *ipc.RunOnce
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res == nil {
		return c.closedErr()
	}

	if res.Done {
		if err := res.Error.Validate(); err != nil {
			return err
		}
		return apperr.Decode(res.Error)
	}

	runErr := run(ctx, fn)
	done := &ipc.RunOnce{
		ID:      id,
		Options: options,
		Done:    true,
		Error:   apperr.Encode(runErr),
	}
	if err := c.sender.Send(done); err != nil {
		return errors.Join(ErrSend, err, runErr)
	}
	return received(done)
}

// received returns the error of a completion as the waiting workers decode it.
func received(done *ipc.RunOnce) error {
	if done.Error == nil {
		return nil
	}
	data, err := ipc.Marshal(done)
	if err != nil {
		return apperr.Decode(done.Error)
	}
	m, err := ipc.Unmarshal(data)
	if err != nil {
		return apperr.Decode(done.Error)
	}
	if echo, ok := m.(*ipc.RunOnce); ok {
		return apperr.Decode(echo.Error)
	}
	return apperr.Decode(done.Error)
}

func run(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New("PanicError", fmt.Sprint(r), nil)
		}
	}()
	return fn(ctx)
}

// Handle delivers a response from the primary. It reports whether a call
// was waiting for it.
func (c *Client) Handle(res *ipc.RunOnce) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[res.ID]
	if !ok {
		return false
	}
	delete(c.pending, res.ID)
	ch <- res
	return true
}

// Close fails every waiting call and rejects new ones.
func (c *Client) Close(cause error) {
	if cause == nil {
		cause = ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}
	c.err = cause
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

func (c *Client) register(id string) (chan *ipc.RunOnce, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan *ipc.RunOnce, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Client) unregister(id string, ch chan *ipc.RunOnce) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.pending[id]; ok && cur == ch {
		delete(c.pending, id)
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
