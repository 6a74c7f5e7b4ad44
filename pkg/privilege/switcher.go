package privilege

import (
	"fmt"
	"os/user"
	"strconv"
	"sync"
)

// Credentials names the account a process should run as.
// Both fields accept a name or a numeric id. Empty means unchanged.
type Credentials struct {
	User  string `yaml:"user"`
	Group string `yaml:"group"`
}

// IsZero reports whether no account is configured.
func (c Credentials) IsZero() bool {
	return c.User == "" && c.Group == ""
}

// Syscalls are the operations used to change identity.
type Syscalls struct {
	Setgroups func(gids []int) error
	Setgid    func(gid int) error
	Setuid    func(uid int) error
}

// Switcher drops the process identity at most once.
type Switcher struct {
	sys      Syscalls
	err      error
	mu       sync.Mutex
	switched bool
	tried    bool
}

// Option configures a Switcher.
type Option func(*Switcher)

// WithSyscalls replaces the platform syscalls.
func WithSyscalls(sys Syscalls) Option {
	return func(s *Switcher) {
		s.sys = sys
	}
}

// NewSwitcher creates a Switcher using the platform syscalls.
func NewSwitcher(opts ...Option) *Switcher {
	s := &Switcher{sys: platformSyscalls()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Switch applies creds: supplementary groups and gid first, then uid.
// Only the first call does any work; later calls return its result with
// switched=false. A zero Credentials or an unsupported platform is a no-op.
func (s *Switcher) Switch(creds Credentials) (switched bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tried {
		return false, s.err
	}
	s.tried = true

	if creds.IsZero() || s.sys.Setuid == nil {
		return false, nil
	}

	s.err = s.apply(creds)
	if s.err != nil {
		return false, s.err
	}
	s.switched = true
	return true, nil
}

// Switched reports whether the identity has been changed.
func (s *Switcher) Switched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switched
}

func (s *Switcher) apply(creds Credentials) error {
	uid, gid := -1, -1
	var err error

	if creds.Group != "" {
		if gid, err = LookupGID(creds.Group); err != nil {
			return err
		}
	}
	if creds.User != "" {
		var u *user.User
		if uid, u, err = lookupUID(creds.User); err != nil {
			return err
		}
		if gid < 0 && u != nil {
			if gid, err = strconv.Atoi(u.Gid); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidID, u.Gid)
			}
		}
	}

	if gid >= 0 {
		if s.sys.Setgroups != nil {
			if err := s.sys.Setgroups([]int{gid}); err != nil {
				return fmt.Errorf("privilege: setgroups %d: %w", gid, err)
			}
		}
		if err := s.sys.Setgid(gid); err != nil {
			return fmt.Errorf("privilege: setgid %d: %w", gid, err)
		}
	}
	if uid >= 0 {
		if err := s.sys.Setuid(uid); err != nil {
			return fmt.Errorf("privilege: setuid %d: %w", uid, err)
		}
	}
	return nil
}

// LookupUID resolves a user name or numeric id.
func LookupUID(name string) (int, error) {
	uid, _, err := lookupUID(name)
	return uid, err
}

func lookupUID(name string) (int, *user.User, error) {
	if id, err := strconv.Atoi(name); err == nil {
		if id < 0 {
			return -1, nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
		}
		return id, nil, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return -1, nil, fmt.Errorf("%w: %s: %w", ErrUnknownUser, name, err)
	}
	id, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, nil, fmt.Errorf("%w: %q", ErrInvalidID, u.Uid)
	}
	return id, u, nil
}

// LookupGID resolves a group name or numeric id.
func LookupGID(name string) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		if id < 0 {
			return -1, fmt.Errorf("%w: %d", ErrInvalidID, id)
		}
		return id, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, fmt.Errorf("%w: %s: %w", ErrUnknownGroup, name, err)
	}
	id, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, fmt.Errorf("%w: %q", ErrInvalidID, g.Gid)
	}
	return id, nil
}
