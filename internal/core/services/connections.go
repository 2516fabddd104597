package services

import "sync"

// ConnectionRegistry maps live transport connections to identities in both
// directions. It is process-local and rebuilt from empty on restart.
type ConnectionRegistry struct {
	mu         sync.RWMutex
	byConn     map[string]string              // conn_id → identity_id
	byIdentity map[string]map[string]struct{} // identity_id → conn_ids
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byConn:     make(map[string]string),
		byIdentity: make(map[string]map[string]struct{}),
	}
}

// Add records the mapping. first is true when the identity had no live
// connection before this one.
func (r *ConnectionRegistry) Add(connID, identityID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byConn[connID]; ok {
		if prev == identityID {
			return false
		}
		r.removeLocked(connID)
	}
	set := r.byIdentity[identityID]
	if set == nil {
		set = make(map[string]struct{})
		r.byIdentity[identityID] = set
	}
	first = len(set) == 0
	set[connID] = struct{}{}
	r.byConn[connID] = identityID
	return first
}

// Remove drops connID. ok is false for connections that never registered;
// last is true when the owning identity has no connection left.
func (r *ConnectionRegistry) Remove(connID string) (identityID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID)
}

func (r *ConnectionRegistry) removeLocked(connID string) (string, bool, bool) {
	identityID, ok := r.byConn[connID]
	if !ok {
		return "", false, false
	}
	delete(r.byConn, connID)
	set := r.byIdentity[identityID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byIdentity, identityID)
		return identityID, true, true
	}
	return identityID, false, true
}

func (r *ConnectionRegistry) IdentityOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	return id, ok
}

// Connections returns a copy of the identity's connection ids.
func (r *ConnectionRegistry) Connections(identityID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byIdentity[identityID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *ConnectionRegistry) Count(identityID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID])
}

// Stats returns the number of connections and of identities holding them.
func (r *ConnectionRegistry) Stats() (conns, identities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn), len(r.byIdentity)
}
