package ipc

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// File descriptors a worker inherits for the channel to its primary.
const (
	// ReadFD is the worker's end of the primary-to-worker pipe.
	ReadFD = 3
	// WriteFD is the worker's end of the worker-to-primary pipe.
	WriteFD = 4
)

// Conn is a bidirectional message channel over a pair of streams.
// Send is safe for concurrent use; Recv must be called from one goroutine.
type Conn struct {
	enc     *cbor.Encoder
	dec     *cbor.Decoder
	closers []io.Closer
	wmu     sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// NewConn wraps a reader and a writer. Closers are closed by Close.
func NewConn(r io.Reader, w io.Writer, closers ...io.Closer) *Conn {
	return &Conn{
		enc:     encMode.NewEncoder(w),
		dec:     decMode.NewDecoder(r),
		closers: closers,
		closed:  make(chan struct{}),
	}
}

// Inherited opens the channel a primary passed to this process on
// ReadFD and WriteFD.
func Inherited() (*Conn, error) {
	r := os.NewFile(ReadFD, "bedrock-ipc-r")
	w := os.NewFile(WriteFD, "bedrock-ipc-w")
	if r == nil || w == nil {
		return nil, ErrNoChannel
	}
	if _, err := r.Stat(); err != nil {
		return nil, errors.Join(ErrNoChannel, err)
	}
	closeOnExec(ReadFD, WriteFD)
	return NewConn(r, w, r, w), nil
}

// Send writes one message.
func (c *Conn) Send(m Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	body, err := encMode.Marshal(m)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.enc.Encode(envelope{V: Version, Type: m.Type(), Body: body})
}

// Recv blocks until the next message arrives. It returns io.EOF once the
// peer closes its end.
func (c *Conn) Recv() (Message, error) {
	var env envelope
	if err := c.dec.Decode(&env); err != nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return nil, io.EOF
		}
		return nil, err
	}
	return open(env)
}

// Close releases the underlying streams. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		errs := make([]error, 0, len(c.closers))
		for _, cl := range c.closers {
			errs = append(errs, cl.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// Pipe returns two connected in-process channels. Messages sent on one are
// received on the other.
func Pipe() (*Conn, *Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewConn(ar, aw, ar, aw)
	b := NewConn(br, bw, br, bw)
	return a, b
}
