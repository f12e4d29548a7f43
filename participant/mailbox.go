package participant

import (
	"gopkg.in/eapache/channels.v1"
)

// job is one unit of work posted to the participant mailbox: every
// user-facing API call becomes a job, run on the participant's executor
// goroutine, with the result delivered back on done (spec §5: "every
// user API operation is a send-await on the participant mailbox").
type job struct {
	run  func()
	done chan struct{}
}

// Mailbox serializes every request into the participant executor using
// an unbounded channel, so a burst of concurrent API calls (many
// simultaneous Write calls from different user goroutines) never blocks
// a caller waiting for channel capacity (spec §5: "the mailbox
// serializes those producers").
type Mailbox struct {
	ch *channels.InfiniteChannel
}

// NewMailbox constructs an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ch: channels.NewInfiniteChannel()}
}

// Submit enqueues fn and blocks the caller until the executor has run
// it, returning fn's result.
func (m *Mailbox) Submit(fn func() (interface{}, error)) (interface{}, error) {
	var result interface{}
	var err error
	done := make(chan struct{})
	m.ch.In() <- job{
		run: func() {
			result, err = fn()
		},
		done: done,
	}
	<-done
	return result, err
}

// Out exposes the channel the executor drains jobs from.
func (m *Mailbox) Out() <-chan interface{} {
	return m.ch.Out()
}

// Close shuts the mailbox down; no further Submit calls may complete.
func (m *Mailbox) Close() {
	m.ch.Close()
}

// run executes j and signals its completion. Called only from the
// executor goroutine.
func run(raw interface{}) {
	j, ok := raw.(job)
	if !ok {
		return
	}
	j.run()
	close(j.done)
}
