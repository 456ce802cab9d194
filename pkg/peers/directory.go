package peers

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Directory is the live-peer table. Membership changes take the write lock;
// gossip generation and topology projection share the read lock. No method
// performs I/O while holding the lock.
type Directory struct {
	mu    sync.RWMutex
	peers map[string]Record
	now   func() time.Time
}

type Option func(*Directory)

// WithClock replaces time.Now as the source of LastSeen and purge times.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		peers: make(map[string]Record),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Upsert registers id at address, replacing any previous record with a fresh
// one. It serves both seeding and heartbeats.
func (d *Directory) Upsert(id, address string, role Role) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := ValidateAddress(address); err != nil {
		return err
	}
	if _, err := RoleFromCode(role.Code()); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.peers[id] = Record{
		ID:       id,
		Address:  address,
		Role:     role,
		LastSeen: d.now(),
	}

	return nil
}

// PurgeDead removes every record older than ttl and returns the removed ids in
// sorted order.
func (d *Directory) PurgeDead(now time.Time, ttl time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var purged []string
	for id, rec := range d.peers {
		if now.Sub(rec.LastSeen) > ttl {
			delete(d.peers, id)
			purged = append(purged, id)
		}
	}
	sort.Strings(purged)

	return purged
}

// GenerateGossip picks up to fanout distinct target addresses uniformly at
// random and returns them with the full snapshot of the table.
func (d *Directory) GenerateGossip(fanout int) ([]string, []Record) {
	d.mu.RLock()
	snapshot := d.sortedLocked()
	d.mu.RUnlock()

	if fanout <= 0 || len(snapshot) == 0 {
		return nil, snapshot
	}
	idx := rand.Perm(len(snapshot))
	if fanout < len(idx) {
		idx = idx[:fanout]
	}
	targets := make([]string, len(idx))
	for i, j := range idx {
		targets[i] = snapshot[j].Address
	}

	return targets, snapshot
}

// HandleGossip merges a received snapshot. Unknown peers are inserted and
// known peers refreshed, both stamped with the local clock; sender timestamps
// are ignored. The record for localID is skipped. It returns the ids of newly
// discovered peers.
func (d *Directory) HandleGossip(incoming []Record, localID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var discovered []string
	for _, rec := range incoming {
		if rec.ID == "" || rec.ID == localID {
			continue
		}
		if known, ok := d.peers[rec.ID]; ok {
			known.LastSeen = now
			d.peers[rec.ID] = known

			continue
		}
		if ValidateAddress(rec.Address) != nil {
			continue
		}
		rec.LastSeen = now
		d.peers[rec.ID] = rec
		discovered = append(discovered, rec.ID)
	}

	return discovered
}

// BuildTopology projects the table onto the aggregation tree. A parameter
// server is a root without preset children; workers find it through their own
// projection (see AssignedWorkers). A worker reports to
// sortedServers[Hash(localID) mod n]; with no servers known it is an orphan.
func (d *Directory) BuildTopology(localID string, localRole Role) Topology {
	switch localRole {
	case ParameterServer:
		return Topology{Children: []Record{}, IsRoot: true}
	case Worker:
		d.mu.RLock()
		servers := d.serversLocked()
		d.mu.RUnlock()

		if len(servers) == 0 {
			return Topology{Children: []Record{}}
		}
		parent := servers[Hash(localID)%uint64(len(servers))]

		return Topology{Parent: &parent, Children: []Record{}}
	default:
		return Topology{Children: []Record{}}
	}
}

// AssignedWorkers returns the workers whose BuildTopology resolves to
// serverID, computed from the table plus serverID itself when it is not
// listed.
func (d *Directory) AssignedWorkers(serverID string) []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	servers := d.serversLocked()
	found := false
	for _, s := range servers {
		if s.ID == serverID {
			found = true

			break
		}
	}
	if !found {
		servers = append(servers, Record{ID: serverID, Role: ParameterServer})
		sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	}

	workers := []Record{}
	for _, rec := range d.sortedLocked() {
		if rec.Role != Worker {
			continue
		}
		if servers[Hash(rec.ID)%uint64(len(servers))].ID == serverID {
			workers = append(workers, rec)
		}
	}

	return workers
}

// Snapshot returns a copy of the table sorted by id.
func (d *Directory) Snapshot() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.sortedLocked()
}

func (d *Directory) Get(id string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.peers[id]

	return rec, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.peers)
}

func (d *Directory) sortedLocked() []Record {
	out := make([]Record, 0, len(d.peers))
	for _, rec := range d.peers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (d *Directory) serversLocked() []Record {
	var servers []Record
	for _, rec := range d.peers {
		if rec.Role == ParameterServer {
			servers = append(servers, rec)
		}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })

	return servers
}
