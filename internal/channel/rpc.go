package channel

import (
	"fmt"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
	"github.com/unknownsaying/meshsync/pkg/cmap"
)

// RPCHandler handles one named call. Params is the raw argument blob;
// the handler owns its interpretation. A returned error is logged by
// the caller, never sent back to the peer.
type RPCHandler func(from domain.PeerID, params []byte) error

// Dispatcher routes incoming RPC packets to registered handlers.
// Registration and dispatch may run concurrently; handlers for
// distinct names never contend.
type Dispatcher struct {
	handlers *cmap.Map[string, RPCHandler]
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: cmap.New[string, RPCHandler]()}
}

// Register binds a handler to a call name, replacing any previous
// binding. Names are validated against the wire limit here so a bad
// registration fails at startup instead of silently never matching.
func (d *Dispatcher) Register(name string, h RPCHandler) error {
	if name == "" || len(name) > wire.MaxRPCNameLen {
		return domain.ErrMalformedPacket.WithDetails(
			fmt.Sprintf("rpc name %q exceeds limits", name))
	}
	if h == nil {
		return domain.ErrMalformedPacket.WithDetails("nil rpc handler")
	}
	d.handlers.Set(name, h)
	return nil
}

// Unregister removes a handler binding.
func (d *Dispatcher) Unregister(name string) {
	d.handlers.Delete(name)
}

// Names returns the registered call names.
func (d *Dispatcher) Names() []string {
	return d.handlers.Keys()
}

// Dispatch invokes the handler for an incoming call. An unknown name
// is not an error worth disconnecting over; it returns ErrEntityNotFound
// semantics under the channel's own code so the caller can count it.
func (d *Dispatcher) Dispatch(from domain.PeerID, call wire.RPC) error {
	h, ok := d.handlers.Get(call.Name)
	if !ok {
		return domain.NewDomainError("MS-CHAN-4040", "unknown rpc").
			WithDetails(call.Name)
	}
	if err := h(from, call.Params); err != nil {
		return fmt.Errorf("rpc %q from peer %d: %w", call.Name, from, err)
	}
	return nil
}
