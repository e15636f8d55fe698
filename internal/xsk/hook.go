package xsk

import "sync"

// hookKey identifies one (device, queue) attachment point.
type hookKey struct {
	ifindex string
	queueID uint32
}

// HookTable is the index-keyed (device, queue) -> socket table the
// packet-processing hook consults to find which bound socket should
// receive traffic for a given queue. A socket joins the table on Bind
// and leaves it on Release or Rebind to a different (ifindex, queueID).
// Normally one key holds exactly one socket; spec.md §4.2/§4.3's
// shared-umem bind mode (scenario E5) is the one case where a key holds
// more than one, since two sockets sharing a umem may both sit on the
// same (device, queue).
//
// Grounded on the teacher's XDP->AF_XDP bridge (xdp_integration.go's
// XDPAFXDPBridge), which held one live queue->destination mapping per
// bridge; generalized here into a shared table multiple sockets
// register into and out of as they bind and release.
type HookTable struct {
	mu      sync.RWMutex
	sockets map[hookKey][]*Socket
}

// NewHookTable returns an empty hook dispatch table.
func NewHookTable() *HookTable {
	return &HookTable{sockets: make(map[hookKey][]*Socket)}
}

// Register attaches socket as a destination for (ifindex, queueID).
// A second, distinct socket may join the same key only if it shares its
// umem with every socket already registered there (BindShared's
// contract); otherwise Register returns KindBusy. Re-registering a
// socket already present at the key is a no-op.
func (h *HookTable) Register(ifindex string, queueID uint32, s *Socket) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{ifindex, queueID}
	existing := h.sockets[key]
	for _, e := range existing {
		if e == s {
			return nil
		}
		if e.umem != s.umem {
			return newErr("hook_register", KindBusy, ifindex)
		}
	}
	h.sockets[key] = append(existing, s)
	return nil
}

// Unregister removes socket from (ifindex, queueID)'s registration list,
// if present, leaving any other socket co-registered there (shared-umem
// mode) untouched.
func (h *HookTable) Unregister(ifindex string, queueID uint32, s *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{ifindex, queueID}
	existing := h.sockets[key]
	for i, e := range existing {
		if e == s {
			h.sockets[key] = append(existing[:i], existing[i+1:]...)
			break
		}
	}
	if len(h.sockets[key]) == 0 {
		delete(h.sockets, key)
	}
}

// Lookup returns the primary socket bound to (ifindex, queueID) — the
// first one registered — if any. Shared-umem co-registrants are only
// reachable by delivering to them directly.
func (h *HookTable) Lookup(ifindex string, queueID uint32) (*Socket, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sockets[hookKey{ifindex, queueID}]
	if !ok || len(s) == 0 {
		return nil, false
	}
	return s[0], true
}

// Dispatch delivers frame to the primary socket bound at (ifindex,
// queueID), if one exists, by handing it to its rx ingestion path.
// Returns ErrNoDev if nothing is bound to that (ifindex, queueID). As
// in scenario E5, delivery through Dispatch only ever touches the one
// socket it resolves to — a co-registered shared-umem sibling is
// unaffected, exactly as if traffic for it arrived on its own call.
func (h *HookTable) Dispatch(ifindex string, queueID uint32, frame []byte) error {
	s, ok := h.Lookup(ifindex, queueID)
	if !ok {
		return newErr("dispatch", KindNoDev, ifindex)
	}
	return s.deliverRx(frame)
}
