package ipc_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bedrock/pkg/apperr"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

func TestConn_SendRecv(t *testing.T) {
	t.Parallel()

	a, b := ipc.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ts := time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)
	sent := []ipc.Message{
		&ipc.WorkerOnline{PID: 1234},
		&ipc.WorkerInit{Cwd: "/srv/app", Script: "/srv/app/bin/app"},
		&ipc.SwitchProcessUser{UID: 1000, GID: 1000},
		&ipc.RunOnce{
			ID:      "seed",
			Options: ipc.RunOnceOptions{AllowOnRestart: true},
			Done:    true,
			Error:   apperr.Encode(apperr.New("SeedError", "seed failed", map[string]any{"table": "users"})),
		},
		&ipc.Log{Time: ts, Level: "info", Msg: "hello", Category: "app", Meta: map[string]any{"module": "seed"}},
		&ipc.Core{Kind: ipc.CoreExit, Code: 3},
	}

	go func() {
		for _, m := range sent {
			if err := a.Send(m); err != nil {
				return
			}
		}
	}()

	for _, want := range sent {
		got, err := b.Recv()
		require.NoError(t, err)
		require.Equal(t, want.Type(), got.Type())
		require.Equal(t, want, got)
	}
}

func TestConn_ConcurrentSend(t *testing.T) {
	t.Parallel()

	a, b := ipc.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	const senders, perSender = 8, 25

	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perSender {
				_ = a.Send(&ipc.Core{Kind: ipc.CoreStop, Code: i})
			}
		}()
	}

	counts := make(map[int]int)
	for range senders * perSender {
		m, err := b.Recv()
		require.NoError(t, err)
		core, ok := m.(*ipc.Core)
		require.True(t, ok)
		counts[core.Code]++
	}
	wg.Wait()

	for i := range senders {
		require.Equal(t, perSender, counts[i])
	}
}

func TestConn_Close(t *testing.T) {
	t.Parallel()

	t.Run("peer close yields EOF", func(t *testing.T) {
		t.Parallel()

		a, b := ipc.Pipe()
		require.NoError(t, a.Close())
		_, err := b.Recv()
		require.ErrorIs(t, err, io.EOF)
		require.NoError(t, b.Close())
	})

	t.Run("send after close fails", func(t *testing.T) {
		t.Parallel()

		a, b := ipc.Pipe()
		t.Cleanup(func() { _ = b.Close() })
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
		require.ErrorIs(t, a.Send(&ipc.Core{Kind: ipc.CoreStop}), ipc.ErrClosed)
	})
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		data, err := ipc.Marshal(&ipc.WorkerInit{Cwd: "/", Script: "app"})
		require.NoError(t, err)
		m, err := ipc.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, &ipc.WorkerInit{Cwd: "/", Script: "app"}, m)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		data, err := cbor.Marshal(map[string]any{"v": ipc.Version, "type": "bedrock.nope", "body": []byte{0xa0}})
		require.NoError(t, err)
		_, err = ipc.Unmarshal(data)
		require.ErrorIs(t, err, ipc.ErrUnknownType)
	})

	t.Run("unsupported version", func(t *testing.T) {
		t.Parallel()

		data, err := cbor.Marshal(map[string]any{"v": 99, "type": string(ipc.TypeCore), "body": []byte{0xa0}})
		require.NoError(t, err)
		_, err = ipc.Unmarshal(data)
		require.ErrorIs(t, err, ipc.ErrUnsupportedVersion)
	})
}

type countingVisitor struct {
	seen map[ipc.Type]int
}

func (v *countingVisitor) hit(t ipc.Type) error {
	v.seen[t]++
	return nil
}

func (v *countingVisitor) VisitWorkerOnline(*ipc.WorkerOnline) error {
	return v.hit(ipc.TypeWorkerOnline)
}

func (v *countingVisitor) VisitWorkerInit(*ipc.WorkerInit) error {
	return v.hit(ipc.TypeWorkerInit)
}

func (v *countingVisitor) VisitSwitchProcessUser(*ipc.SwitchProcessUser) error {
	return v.hit(ipc.TypeSwitchProcessUser)
}
func (v *countingVisitor) VisitRunOnce(*ipc.RunOnce) error { return v.hit(ipc.TypeRunOnce) }
func (v *countingVisitor) VisitLog(*ipc.Log) error         { return v.hit(ipc.TypeLog) }

func (v *countingVisitor) VisitCore(*ipc.Core) error {
	return errors.New("core rejected")
}

func TestMessage_Accept(t *testing.T) {
	t.Parallel()

	v := &countingVisitor{seen: make(map[ipc.Type]int)}
	for _, m := range []ipc.Message{
		&ipc.WorkerOnline{}, &ipc.WorkerInit{}, &ipc.SwitchProcessUser{}, &ipc.RunOnce{}, &ipc.Log{},
	} {
		require.NoError(t, m.Accept(v))
		require.Equal(t, 1, v.seen[m.Type()])
	}
	require.EqualError(t, (&ipc.Core{}).Accept(v), "core rejected")
}
