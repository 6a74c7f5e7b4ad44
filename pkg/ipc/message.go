package ipc

import (
	"time"

	"github.com/dmitrymomot/bedrock/pkg/apperr"
)

// Type discriminates protocol messages on the wire.
type Type string

// Message types exchanged between the primary and its workers.
const (
	TypeWorkerOnline      Type = "bedrock.worker.online"
	TypeWorkerInit        Type = "bedrock.worker.init"
	TypeSwitchProcessUser Type = "bedrock.switchProcessUser"
	TypeRunOnce           Type = "bedrock.runOnce"
	TypeLog               Type = "bedrock.logger"
	TypeCore              Type = "bedrock.core"
)

// Message is one of the protocol message types in this package.
// Accept dispatches to the matching Visitor method, so a Visitor
// implementation must handle every kind.
type Message interface {
	Type() Type
	Accept(v Visitor) error
}

// Visitor handles every message kind.
type Visitor interface {
	VisitWorkerOnline(m *WorkerOnline) error
	VisitWorkerInit(m *WorkerInit) error
	VisitSwitchProcessUser(m *SwitchProcessUser) error
	VisitRunOnce(m *RunOnce) error
	VisitLog(m *Log) error
	VisitCore(m *Core) error
}

// WorkerOnline is the worker's handshake once its channel is up.
type WorkerOnline struct {
	PID int `cbor:"pid"`
}

// WorkerInit tells a worker where and what to run.
type WorkerInit struct {
	Cwd    string `cbor:"cwd"`
	Script string `cbor:"script"`
}

// SwitchProcessUser tells the primary that a worker dropped its privileges.
type SwitchProcessUser struct {
	UID int `cbor:"uid"`
	GID int `cbor:"gid"`
}

// RunOnceOptions configures a run-once request.
type RunOnceOptions struct {
	// AllowOnRestart permits a fresh attempt when the owner crashes before finishing.
	AllowOnRestart bool `cbor:"allowOnRestart"`
}

// RunOnce is both the request and the response of the run-once protocol.
// Done distinguishes them: a worker sends Done=false to ask and Done=true to
// report completion; the primary replies Done=false to grant ownership and
// Done=true with the stored result.
type RunOnce struct {
	Error   *apperr.Wire   `cbor:"error,omitempty"`
	ID      string         `cbor:"id"`
	Options RunOnceOptions `cbor:"options"`
	Done    bool           `cbor:"done"`
}

// Log relays a worker log record to the primary.
type Log struct {
	Time     time.Time      `cbor:"time"`
	Meta     map[string]any `cbor:"meta,omitempty"`
	Level    string         `cbor:"level"`
	Msg      string         `cbor:"msg"`
	Category string         `cbor:"category"`
}

// CoreKind names a control notification.
type CoreKind string

// Control notifications.
const (
	// CoreExit is sent by a worker that is exiting on purpose.
	CoreExit CoreKind = "exit"
	// CoreStop asks a worker to run its shutdown sequence.
	CoreStop CoreKind = "stop"
)

// Core carries exit coordination between the primary and a worker.
type Core struct {
	Kind CoreKind `cbor:"kind"`
	Code int      `cbor:"code"`
}

func (*WorkerOnline) Type() Type      { return TypeWorkerOnline }
func (*WorkerInit) Type() Type        { return TypeWorkerInit }
func (*SwitchProcessUser) Type() Type { return TypeSwitchProcessUser }
func (*RunOnce) Type() Type           { return TypeRunOnce }
func (*Log) Type() Type               { return TypeLog }
func (*Core) Type() Type              { return TypeCore }

func (m *WorkerOnline) Accept(v Visitor) error      { return v.VisitWorkerOnline(m) }
func (m *WorkerInit) Accept(v Visitor) error        { return v.VisitWorkerInit(m) }
func (m *SwitchProcessUser) Accept(v Visitor) error { return v.VisitSwitchProcessUser(m) }
func (m *RunOnce) Accept(v Visitor) error           { return v.VisitRunOnce(m) }
func (m *Log) Accept(v Visitor) error               { return v.VisitLog(m) }
func (m *Core) Accept(v Visitor) error              { return v.VisitCore(m) }

// newMessage returns an empty message for a wire type.
func newMessage(t Type) (Message, bool) {
	switch t {
	case TypeWorkerOnline:
		return &WorkerOnline{}, true
	case TypeWorkerInit:
		return &WorkerInit{}, true
	case TypeSwitchProcessUser:
		return &SwitchProcessUser{}, true
	case TypeRunOnce:
		return &RunOnce{}, true
	case TypeLog:
		return &Log{}, true
	case TypeCore:
		return &Core{}, true
	}
	return nil, false
}
