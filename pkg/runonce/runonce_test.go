package runonce_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bedrock/pkg/apperr"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/runonce"
)

// cluster wires a registry to in-process workers over ipc pipes.
type cluster struct {
	reg   *runonce.Registry
	conns map[int]*ipc.Conn
	mu    sync.Mutex
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	return &cluster{reg: runonce.NewRegistry(), conns: make(map[int]*ipc.Conn)}
}

// worker starts a worker with the given id and returns its client.
func (c *cluster) worker(t *testing.T, id int) *runonce.Client {
	t.Helper()

	primary, worker := ipc.Pipe()
	t.Cleanup(func() {
		_ = primary.Close()
		_ = worker.Close()
	})

	c.mu.Lock()
	c.conns[id] = primary
	c.mu.Unlock()

	client := runonce.NewClient(worker)

	go func() {
		for {
			m, err := worker.Recv()
			if err != nil {
				client.Close(err)
				return
			}
			if r, ok := m.(*ipc.RunOnce); ok {
				client.Handle(r)
			}
		}
	}()

	go func() {
		for {
			m, err := primary.Recv()
			if err != nil {
				return
			}
			r, ok := m.(*ipc.RunOnce)
			if !ok {
				continue
			}
			c.handle(id, r)
		}
	}()

	return client
}

func (c *cluster) handle(from int, r *ipc.RunOnce) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var replies []runonce.Reply
	if r.Done {
		replies, _ = c.reg.Complete(from, r)
	} else {
		_, replies = c.reg.Request(from, r)
	}
	for _, reply := range replies {
		if conn, ok := c.conns[reply.To]; ok {
			_ = conn.Send(reply.Msg)
		}
	}
}

// crash drops a worker the way the supervisor does when its process dies.
func (c *cluster) crash(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reg.WorkerExited(id)
	if conn, ok := c.conns[id]; ok {
		_ = conn.Close()
		delete(c.conns, id)
	}
}

func TestClient_Do(t *testing.T) {
	t.Parallel()

	t.Run("concurrent workers run the work exactly once", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		const workers = 8

		var runs atomic.Int32
		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			client := c.worker(t, i+1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- client.Do(context.Background(), "x", func(context.Context) error {
					runs.Add(1)
					time.Sleep(5 * time.Millisecond)
					return nil
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, int32(1), runs.Load())
	})

	t.Run("owner failure reaches every caller with name and details", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		const workers = 4

		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			client := c.worker(t, i+1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- client.Do(context.Background(), "x", func(context.Context) error {
					time.Sleep(5 * time.Millisecond)
					return apperr.New("SeedError", "seed failed", map[string]any{"table": "users"})
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			require.Equal(t, "SeedError", ae.Name)
			require.Equal(t, "seed failed", ae.Message)
			v, ok := ae.Detail("table")
			require.True(t, ok)
			require.Equal(t, "users", v)
		}
	})

	t.Run("owner and waiters see the same wrapped failure", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		owner := c.worker(t, 1)
		other := c.worker(t, 2)

		fn := func(context.Context) error {
			return fmt.Errorf("seeding: %w", apperr.New("SeedError", "seed failed", map[string]any{"rows": 3}))
		}

		for _, err := range []error{
			owner.Do(context.Background(), "x", fn),
			other.Do(context.Background(), "x", fn),
		} {
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			require.Equal(t, "SeedError", ae.Name)
			require.Equal(t, "seeding: seed failed", ae.Error())
			require.Equal(t, map[string]any{"rows": int64(3)}, ae.Details)
		}
	})

	t.Run("late caller receives stored result", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		first := c.worker(t, 1)
		second := c.worker(t, 2)

		var runs atomic.Int32
		fn := func(context.Context) error {
			runs.Add(1)
			return nil
		}

		require.NoError(t, first.Do(context.Background(), "x", fn))
		require.NoError(t, second.Do(context.Background(), "x", fn))
		require.NoError(t, first.Do(context.Background(), "x", fn))
		require.Equal(t, int32(1), runs.Load())
	})

	t.Run("calls within one worker share a request", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		client := c.worker(t, 1)

		var runs atomic.Int32
		release := make(chan struct{})
		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = client.Do(context.Background(), "x", func(context.Context) error {
					runs.Add(1)
					<-release
					return nil
				})
			}()
		}
		time.Sleep(10 * time.Millisecond)
		close(release)
		wg.Wait()

		require.Equal(t, int32(1), runs.Load())
	})

	t.Run("a canceled caller leaves the others waiting", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		client := c.worker(t, 1)

		started := make(chan struct{})
		release := make(chan struct{})
		fn := func(ctx context.Context) error {
			close(started)
			<-release
			return ctx.Err()
		}

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() { first <- client.Do(ctx, "x", fn) }()
		<-started

		second := make(chan error, 1)
		go func() { second <- client.Do(context.Background(), "x", fn) }()
		time.Sleep(10 * time.Millisecond)

		cancel()
		require.ErrorIs(t, <-first, context.Canceled)

		close(release)
		require.NoError(t, <-second)
	})

	t.Run("work is canceled once every caller gives up", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		client := c.worker(t, 1)

		started := make(chan struct{})
		stopped := make(chan error, 1)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- client.Do(ctx, "x", func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				stopped <- ctx.Err()
				return ctx.Err()
			})
		}()
		<-started

		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
		require.ErrorIs(t, <-stopped, context.Canceled)
	})

	t.Run("allow on restart lets a replacement retry", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		owner := c.worker(t, 1)

		started := make(chan struct{})
		release := make(chan struct{})
		ownerDone := make(chan error, 1)
		go func() {
			ownerDone <- owner.Do(context.Background(), "x", func(context.Context) error {
				close(started)
				<-release
				return nil
			}, runonce.AllowOnRestart())
		}()
		<-started

		c.crash(1)

		var retried atomic.Bool
		replacement := c.worker(t, 2)
		err := replacement.Do(context.Background(), "x", func(context.Context) error {
			retried.Store(true)
			return nil
		}, runonce.AllowOnRestart())
		require.NoError(t, err)
		require.True(t, retried.Load())

		close(release)
		require.ErrorIs(t, <-ownerDone, runonce.ErrSend)
	})

	t.Run("without allow on restart waiters stay pending", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		owner := c.worker(t, 1)

		started := make(chan struct{})
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		go func() {
			_ = owner.Do(context.Background(), "x", func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		c.crash(1)

		var ran atomic.Bool
		replacement := c.worker(t, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := replacement.Do(ctx, "x", func(context.Context) error {
			ran.Store(true)
			return nil
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, ran.Load())
	})

	t.Run("panic in work is reported as error", func(t *testing.T) {
		t.Parallel()

		c := newCluster(t)
		client := c.worker(t, 1)
		other := c.worker(t, 2)

		err := client.Do(context.Background(), "x", func(context.Context) error { panic("boom") })
		require.True(t, apperr.HasName(err, "PanicError"))

		err = other.Do(context.Background(), "x", func(context.Context) error { return nil })
		require.True(t, apperr.HasName(err, "PanicError"))
		require.EqualError(t, err, "boom")
	})

	t.Run("invalid arguments", func(t *testing.T) {
		t.Parallel()

		client := runonce.NewClient(nil)
		require.ErrorIs(t, client.Do(context.Background(), "", func(context.Context) error { return nil }), runonce.ErrEmptyID)
		require.ErrorIs(t, client.Do(context.Background(), "x", nil), runonce.ErrNilFunc)
	})
}

type recordingSender struct {
	sent []ipc.Message
	mu   sync.Mutex
}

func (s *recordingSender) Send(m ipc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	client := runonce.NewClient(&recordingSender{})
	done := make(chan error, 1)
	go func() {
		done <- client.Do(context.Background(), "x", func(context.Context) error { return nil })
	}()

	require.Eventually(t, func() bool {
		client.Close(nil)
		select {
		case err := <-done:
			return errors.Is(err, runonce.ErrClosed)
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, client.Do(context.Background(), "y", func(context.Context) error { return nil }), runonce.ErrClosed)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("request outcomes", func(t *testing.T) {
		t.Parallel()

		reg := runonce.NewRegistry()

		outcome, replies := reg.Request(1, &ipc.RunOnce{ID: "x"})
		require.Equal(t, runonce.OutcomeOwner, outcome)
		require.Len(t, replies, 1)
		require.Equal(t, 1, replies[0].To)
		require.False(t, replies[0].Msg.Done)

		outcome, replies = reg.Request(2, &ipc.RunOnce{ID: "x"})
		require.Equal(t, runonce.OutcomeQueued, outcome)
		require.Empty(t, replies)
		require.Equal(t, 1, reg.Pending())

		fail := apperr.Encode(apperr.New("E", "e", nil))
		replies, err := reg.Complete(1, &ipc.RunOnce{ID: "x", Done: true, Error: fail})
		require.NoError(t, err)
		require.Len(t, replies, 1)
		require.Equal(t, 2, replies[0].To)
		require.True(t, replies[0].Msg.Done)
		require.Equal(t, fail, replies[0].Msg.Error)
		require.Zero(t, reg.Pending())

		outcome, replies = reg.Request(3, &ipc.RunOnce{ID: "x"})
		require.Equal(t, runonce.OutcomeDone, outcome)
		require.Len(t, replies, 1)
		require.Equal(t, fail, replies[0].Msg.Error)
	})

	t.Run("completion is accepted once and only from the owner", func(t *testing.T) {
		t.Parallel()

		reg := runonce.NewRegistry()
		_, err := reg.Complete(1, &ipc.RunOnce{ID: "missing", Done: true})
		require.ErrorIs(t, err, runonce.ErrUnknownID)

		reg.Request(1, &ipc.RunOnce{ID: "x"})
		_, err = reg.Complete(2, &ipc.RunOnce{ID: "x", Done: true})
		require.ErrorIs(t, err, runonce.ErrNotOwner)

		_, err = reg.Complete(1, &ipc.RunOnce{ID: "x", Done: true})
		require.NoError(t, err)
		_, err = reg.Complete(1, &ipc.RunOnce{ID: "x", Done: true})
		require.ErrorIs(t, err, runonce.ErrAlreadyDone)
	})

	t.Run("worker exit clears only restartable unfinished records", func(t *testing.T) {
		t.Parallel()

		reg := runonce.NewRegistry()
		reg.Request(1, &ipc.RunOnce{ID: "restartable", Options: ipc.RunOnceOptions{AllowOnRestart: true}})
		reg.Request(1, &ipc.RunOnce{ID: "sticky"})
		reg.Request(1, &ipc.RunOnce{ID: "finished", Options: ipc.RunOnceOptions{AllowOnRestart: true}})
		reg.Request(2, &ipc.RunOnce{ID: "other", Options: ipc.RunOnceOptions{AllowOnRestart: true}})
		_, err := reg.Complete(1, &ipc.RunOnce{ID: "finished", Done: true})
		require.NoError(t, err)

		require.Equal(t, []string{"restartable"}, reg.WorkerExited(1))

		outcome, _ := reg.Request(3, &ipc.RunOnce{ID: "restartable"})
		require.Equal(t, runonce.OutcomeOwner, outcome)
		outcome, _ = reg.Request(3, &ipc.RunOnce{ID: "sticky"})
		require.Equal(t, runonce.OutcomeQueued, outcome)
		outcome, _ = reg.Request(3, &ipc.RunOnce{ID: "finished"})
		require.Equal(t, runonce.OutcomeDone, outcome)
	})
}
