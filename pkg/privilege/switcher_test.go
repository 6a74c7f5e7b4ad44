package privilege_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bedrock/pkg/privilege"
)

type fakeSys struct {
	setuid    atomic.Int32
	setgid    atomic.Int32
	setgroups atomic.Int32
	uid       atomic.Int32
	gid       atomic.Int32
	fail      error
}

func (f *fakeSys) syscalls() privilege.Syscalls {
	return privilege.Syscalls{
		Setgroups: func([]int) error {
			f.setgroups.Add(1)
			return nil
		},
		Setgid: func(gid int) error {
			f.setgid.Add(1)
			f.gid.Store(int32(gid))
			return nil
		},
		Setuid: func(uid int) error {
			f.setuid.Add(1)
			f.uid.Store(int32(uid))
			return f.fail
		},
	}
}

func TestSwitcher_Switch(t *testing.T) {
	t.Parallel()

	t.Run("switches once across repeated calls", func(t *testing.T) {
		t.Parallel()

		sys := &fakeSys{}
		s := privilege.NewSwitcher(privilege.WithSyscalls(sys.syscalls()))

		switched, err := s.Switch(privilege.Credentials{User: "1000", Group: "1001"})
		require.NoError(t, err)
		require.True(t, switched)
		require.True(t, s.Switched())

		for range 3 {
			switched, err = s.Switch(privilege.Credentials{User: "1000", Group: "1001"})
			require.NoError(t, err)
			require.False(t, switched)
		}

		require.Equal(t, int32(1), sys.setuid.Load())
		require.Equal(t, int32(1), sys.setgid.Load())
		require.Equal(t, int32(1), sys.setgroups.Load())
		require.Equal(t, int32(1000), sys.uid.Load())
		require.Equal(t, int32(1001), sys.gid.Load())
	})

	t.Run("concurrent callers switch once", func(t *testing.T) {
		t.Parallel()

		sys := &fakeSys{}
		s := privilege.NewSwitcher(privilege.WithSyscalls(sys.syscalls()))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := s.Switch(privilege.Credentials{User: "1000"}); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load())
		require.Equal(t, int32(1), sys.setuid.Load())
		require.Zero(t, sys.setgid.Load())
	})

	t.Run("nothing configured is a no-op", func(t *testing.T) {
		t.Parallel()

		sys := &fakeSys{}
		s := privilege.NewSwitcher(privilege.WithSyscalls(sys.syscalls()))

		switched, err := s.Switch(privilege.Credentials{})
		require.NoError(t, err)
		require.False(t, switched)
		require.False(t, s.Switched())
		require.Zero(t, sys.setuid.Load())
	})

	t.Run("unsupported platform is a no-op", func(t *testing.T) {
		t.Parallel()

		s := privilege.NewSwitcher(privilege.WithSyscalls(privilege.Syscalls{}))
		switched, err := s.Switch(privilege.Credentials{User: "1000"})
		require.NoError(t, err)
		require.False(t, switched)
	})

	t.Run("syscall failure is remembered", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("EPERM")
		sys := &fakeSys{fail: boom}
		s := privilege.NewSwitcher(privilege.WithSyscalls(sys.syscalls()))

		_, err := s.Switch(privilege.Credentials{User: "1000"})
		require.ErrorIs(t, err, boom)
		_, err = s.Switch(privilege.Credentials{User: "1000"})
		require.ErrorIs(t, err, boom)
		require.Equal(t, int32(1), sys.setuid.Load())
		require.False(t, s.Switched())
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		sys := &fakeSys{}
		s := privilege.NewSwitcher(privilege.WithSyscalls(sys.syscalls()))
		_, err := s.Switch(privilege.Credentials{User: "bedrock-no-such-user"})
		require.ErrorIs(t, err, privilege.ErrUnknownUser)
		require.Zero(t, sys.setuid.Load())
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	uid, err := privilege.LookupUID("42")
	require.NoError(t, err)
	require.Equal(t, 42, uid)

	gid, err := privilege.LookupGID("7")
	require.NoError(t, err)
	require.Equal(t, 7, gid)

	_, err = privilege.LookupUID("-1")
	require.ErrorIs(t, err, privilege.ErrInvalidID)

	_, err = privilege.LookupGID("bedrock-no-such-group")
	require.ErrorIs(t, err, privilege.ErrUnknownGroup)
}
