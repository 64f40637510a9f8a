package core

import (
	"context"
	"fmt"
	"sync"
)

// Command is the sum type received from the UI collaborator (§3). The hash
// disambiguates concurrent incoming offers.
type Command struct {
	Accept bool
	Hash   string
}

// CommandReceiver is the shared, mutex-guarded command channel consumer.
// Exactly one inbound transfer may be in the "waiting for user decision"
// state at a time (§5): WaitFor locks the receiver for the duration of a
// single wait and releases it as soon as a decision (or the timeout)
// resolves, so a second inbound substream cannot observe a command meant
// for another offer.
type CommandReceiver struct {
	mu sync.Mutex
	ch <-chan Command
}

// NewCommandChannel creates the command channel and its sender/receiver
// halves.
func NewCommandChannel(buffer int) (chan<- Command, *CommandReceiver) {
	ch := make(chan Command, buffer)
	return ch, &CommandReceiver{ch: ch}
}

// WaitFor blocks until a Command carrying the given hash arrives, the
// context is cancelled (used to implement the substream timeout, §4.3
// step 3), or the channel is closed. Per §9's relaxed handling of the
// "hash correlation bug", commands whose hash does not match are ignored
// and the wait continues rather than being treated as an implicit denial.
func (r *CommandReceiver) WaitFor(ctx context.Context, hash string) (accept bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		select {
		case cmd, ok := <-r.ch:
			if !ok {
				return false, fmt.Errorf("core: command channel closed while waiting for %s", hash)
			}
			if cmd.Hash != hash {
				continue
			}
			return cmd.Accept, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
