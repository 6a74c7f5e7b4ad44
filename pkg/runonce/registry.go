package runonce

import (
	"github.com/dmitrymomot/bedrock/pkg/apperr"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

// Outcome describes how the primary answered a request.
type Outcome string

const (
	// OutcomeOwner means the requester must run the work itself.
	OutcomeOwner Outcome = "owner"
	// OutcomeDone means the stored result was returned immediately.
	OutcomeDone Outcome = "done"
	// OutcomeQueued means the requester waits for the owner to finish.
	OutcomeQueued Outcome = "queued"
)

// Reply is a response addressed to one worker.
type Reply struct {
	Msg *ipc.RunOnce
	To  int
}

type record struct {
	err     *apperr.Wire
	queue   []int
	options ipc.RunOnceOptions
	owner   int
	done    bool
}

// Registry is the primary-side record set. It is not safe for concurrent
// use: the supervisor loop owns it and feeds it one message at a time.
type Registry struct {
	records map[string]*record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record)}
}

// Request handles a run-once request from worker.
// The first requester for an id becomes its owner and is told to run the work.
// Requests for a finished id get the stored result. Anything else is queued
// until the owner completes.
func (r *Registry) Request(worker int, req *ipc.RunOnce) (Outcome, []Reply) {
	rec, ok := r.records[req.ID]
	if !ok {
		r.records[req.ID] = &record{owner: worker, options: req.Options}
		return OutcomeOwner, []Reply{{To: worker, Msg: &ipc.RunOnce{ID: req.ID, Options: req.Options}}}
	}
	if rec.done {
		return OutcomeDone, []Reply{{To: worker, Msg: rec.result(req.ID)}}
	}
	rec.queue = append(rec.queue, worker)
	return OutcomeQueued, nil
}

// Complete records the owner's result and returns the notifications for
// every queued worker.
func (r *Registry) Complete(worker int, res *ipc.RunOnce) ([]Reply, error) {
	rec, ok := r.records[res.ID]
	switch {
	case !ok:
		return nil, ErrUnknownID
	case rec.done:
		return nil, ErrAlreadyDone
	case rec.owner != worker:
		return nil, ErrNotOwner
	}

	rec.done = true
	rec.err = res.Error

	replies := make([]Reply, 0, len(rec.queue))
	for _, w := range rec.queue {
		replies = append(replies, Reply{To: w, Msg: rec.result(res.ID)})
	}
	rec.queue = nil
	return replies, nil
}

// WorkerExited forgets unfinished records owned by worker that allow a
// retry after restart, and returns their ids. Records without
// AllowOnRestart stay pending and their waiters are never notified.
func (r *Registry) WorkerExited(worker int) []string {
	var cleared []string
	for id, rec := range r.records {
		if rec.owner != worker || rec.done || !rec.options.AllowOnRestart {
			continue
		}
		delete(r.records, id)
		cleared = append(cleared, id)
	}
	return cleared
}

// Pending returns the number of records that have not completed.
func (r *Registry) Pending() int {
	n := 0
	for _, rec := range r.records {
		if !rec.done {
			n++
		}
	}
	return n
}

func (rec *record) result(id string) *ipc.RunOnce {
	return &ipc.RunOnce{
		ID:      id,
		Options: rec.options,
		Done:    true,
		Error:   rec.err,
	}
}
