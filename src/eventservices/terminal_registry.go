package eventservices

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

const terminalSendBuffer = 16

// TerminalConn is one live terminal connection. The write pump of the
// websocket handler drains SendCh; the router never touches the socket
// directly.
type TerminalConn struct {
	TerminalID string
	SendCh     chan eventmodels.FireCommand
}

// TerminalRegistry tracks which terminals currently hold a live connection.
// A terminal that reconnects replaces its previous entry.
type TerminalRegistry struct {
	mu    sync.RWMutex
	conns map[string]*TerminalConn
}

func NewTerminalRegistry() *TerminalRegistry {
	return &TerminalRegistry{
		conns: make(map[string]*TerminalConn),
	}
}

func (r *TerminalRegistry) Register(terminalID string) *TerminalConn {
	conn := &TerminalConn{
		TerminalID: terminalID,
		SendCh:     make(chan eventmodels.FireCommand, terminalSendBuffer),
	}

	r.mu.Lock()
	if prev, ok := r.conns[terminalID]; ok {
		close(prev.SendCh)
		log.Warnf("TerminalRegistry: terminal %v reconnected, replacing previous connection", terminalID)
	}
	r.conns[terminalID] = conn
	r.mu.Unlock()

	return conn
}

func (r *TerminalRegistry) Unregister(terminalID string, conn *TerminalConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only remove if the registered connection is still ours: a reconnect
	// may already have replaced it.
	if current, ok := r.conns[terminalID]; ok && current == conn {
		delete(r.conns, terminalID)
		close(conn.SendCh)
	}
}

// Send enqueues a command for a terminal without blocking. A full send
// buffer fails the dispatch: the command has been idempotency-claimed by
// then, so the caller reports delivery_failed rather than retrying.
func (r *TerminalRegistry) Send(terminalID string, cmd eventmodels.FireCommand) error {
	// The read lock is held across the enqueue: Register closes SendCh
	// under the write lock, so this send can never hit a closed channel.
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[terminalID]
	if !ok {
		return fmt.Errorf("TerminalRegistry:Send(): terminal %v is not connected", terminalID)
	}

	select {
	case conn.SendCh <- cmd:
		return nil
	default:
		return fmt.Errorf("TerminalRegistry:Send(): send buffer full for terminal %v", terminalID)
	}
}

func (r *TerminalRegistry) IsConnected(terminalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[terminalID]
	return ok
}
