package core

import (
	"context"
	"log"

	"github.com/dragit/dragit-go/protocol"
)

// Backend is the single owner of the peer identity, peer table, and
// command/event channels. It is the handle external collaborators (the UI,
// a CLI) hold; everything below it is reached through Backend's methods or
// the channels it exposes (§9 "Cross-task state").
type Backend struct {
	Config   Config
	Identity Identity

	Peers    *PeerTable
	Events   EventSender
	EventsRx <-chan Event

	commandTx chan<- Command
	Commands  *CommandReceiver

	cancel context.CancelFunc
}

// Init loads the configuration, generates the process identity, and wires
// up the peer table and channels. ConfigFilename may be empty, in which
// case the default location (§6) is used. A non-ExitSuccess status means
// the caller must not start the core (§7).
func Init(configFilename string) (backend *Backend, status int, err error) {
	if configFilename == "" {
		if configFilename, err = ConfigPath(); err != nil {
			return nil, ExitErrorConfigAccess, err
		}
	}

	cfg, status, err := LoadConfig(configFilename)
	if status != ExitSuccess {
		return nil, status, err
	}

	identity, err := NewIdentity()
	if err != nil {
		return nil, ExitErrorIdentity, err
	}

	events, eventsRx := NewEventChannel()
	commandTx, commandRx := NewCommandChannel(256)

	backend = &Backend{
		Config:    cfg,
		Identity:  identity,
		Events:    events,
		EventsRx:  eventsRx,
		commandTx: commandTx,
		Commands:  commandRx,
	}
	backend.Peers = NewPeerTable(events)

	return backend, ExitSuccess, nil
}

// SendCommand delivers an Accept/Deny decision from the UI collaborator.
func (b *Backend) SendCommand(cmd Command) {
	select {
	case b.commandTx <- cmd:
	default:
		log.Printf("core: command channel full, dropping command for %s", cmd.Hash)
	}
}

// Hostname returns the local hostname tag to advertise over discovery,
// falling back to "unknown" if the OS call fails.
func Hostname() string {
	name, err := osHostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

// HostRecord builds this process's discovery Host record (§4.2).
func (b *Backend) HostRecord() protocol.Host {
	return protocol.Host{Hostname: Hostname(), OS: currentOS()}
}

// Shutdown calls the backend's cancel function if one is set. Init does
// not set one, so on a Backend built by Init this is a no-op.
func (b *Backend) Shutdown() {
	if b.cancel != nil {
		b.cancel()
	}
}
