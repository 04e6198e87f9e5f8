// Package graphcache is an in-memory mirror of the live audio-server
// graph (spec.md §4.1), generalized from the corpus' reader/writer-locked
// resource registries in internal/audiocore/resource_manager.go from
// tracking audio devices to tracking graph nodes/ports/links.
//
// The cache is a mirror, not a source of truth: it is authoritative only
// for "what was last observed"; the audio server remains the source of
// truth, and every mutation here is idempotent on id collision.
package graphcache

import (
	"sync"

	"github.com/undertone-audio/undertone/internal/model"
)

// Cache holds the last-observed graph state. All operations are safe for
// concurrent use by many readers and one logical writer (the Server
// Runtime's event handlers).
type Cache struct {
	mu sync.RWMutex

	nodes     map[uint32]model.NodeRecord
	nodesByNm map[string]uint32
	ports     map[uint32]model.PortRecord
	portsByNd map[uint32][]uint32 // node id -> port ids
	links     map[uint32]model.LinkRecord

	createdNodes map[string]uint32 // logical name -> server id, this process only
	createdLinks map[string]uint32 // logical "src>dst" name -> server id, this process only
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		nodes:        make(map[uint32]model.NodeRecord),
		nodesByNm:    make(map[string]uint32),
		ports:        make(map[uint32]model.PortRecord),
		portsByNd:    make(map[uint32][]uint32),
		links:        make(map[uint32]model.LinkRecord),
		createdNodes: make(map[string]uint32),
		createdLinks: make(map[string]uint32),
	}
}

// AddNode inserts or overwrites a node record.
func (c *Cache) AddNode(n model.NodeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.nodes[n.ID]; ok && old.Name != n.Name {
		delete(c.nodesByNm, old.Name)
	}
	c.nodes[n.ID] = n
	c.nodesByNm[n.Name] = n.ID
}

// RemoveNode deletes a node (and its ports) by id. Idempotent.
func (c *Cache) RemoveNode(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[id]; ok {
		delete(c.nodesByNm, n.Name)
		delete(c.nodes, id)
	}
	for _, pid := range c.portsByNd[id] {
		delete(c.ports, pid)
	}
	delete(c.portsByNd, id)
}

// NodeByID looks up a node by id.
func (c *Cache) NodeByID(id uint32) (model.NodeRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok
}

// NodeByName looks up a node by its current name. Names are not unique
// in the audio server in general, but are unique within the set of
// managed nodes this daemon creates, which is the only case this lookup
// is used for.
func (c *Cache) NodeByName(name string) (model.NodeRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.nodesByNm[name]
	if !ok {
		return model.NodeRecord{}, false
	}
	n := c.nodes[id]
	return n, true
}

// AddPort inserts or overwrites a port record.
func (c *Cache) AddPort(p model.PortRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.ports[p.ID]; !exists {
		c.portsByNd[p.NodeID] = append(c.portsByNd[p.NodeID], p.ID)
	}
	c.ports[p.ID] = p
}

// RemovePort deletes a port by id. Idempotent.
func (c *Cache) RemovePort(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ports[id]
	if !ok {
		return
	}
	delete(c.ports, id)
	ids := c.portsByNd[p.NodeID]
	for i, pid := range ids {
		if pid == id {
			c.portsByNd[p.NodeID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// PortsOf enumerates the ports of a node, optionally filtered by
// direction and/or channel position label (e.g. "FL"). An empty filter
// value means "don't filter on this field".
func (c *Cache) PortsOf(nodeID uint32, direction model.PortDirection, channelPosition string) []model.PortRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.PortRecord
	for _, pid := range c.portsByNd[nodeID] {
		p := c.ports[pid]
		if direction != "" && p.Direction != direction {
			continue
		}
		if channelPosition != "" && p.ChannelPosition != channelPosition {
			continue
		}
		out = append(out, p)
	}
	return out
}

// AddLink inserts or overwrites a link record.
func (c *Cache) AddLink(l model.LinkRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[l.ID] = l
}

// RemoveLink deletes a link by id. Idempotent.
func (c *Cache) RemoveLink(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, id)
}

// LinkExists reports whether any link connects outputNode to inputNode.
func (c *Cache) LinkExists(outputNode, inputNode uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.links {
		if l.OutputNode == outputNode && l.InputNode == inputNode {
			return true
		}
	}
	return false
}

// LinkBetweenPorts reports whether a link connects the specific output
// port to the specific input port — the per-link presence check the
// Reconciler needs to self-heal partial (e.g. FL-only) link failures.
func (c *Cache) LinkBetweenPorts(outputPort, inputPort uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.links {
		if l.OutputPort == outputPort && l.InputPort == inputPort {
			return true
		}
	}
	return false
}

// AudioClients enumerates nodes that look like application audio
// streams: media class Stream/Output/Audio, not managed by us, and not
// the configured target device.
func (c *Cache) AudioClients(targetDeviceName string) []model.NodeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.NodeRecord
	for _, n := range c.nodes {
		if n.IsAudioClient(targetDeviceName) {
			out = append(out, n)
		}
	}
	return out
}

// OutputDevices enumerates unmanaged sink nodes — candidate physical or
// virtual output devices a client could pick as the monitor target via
// SetMonitorOutput (spec.md §6, GetOutputDevices).
func (c *Cache) OutputDevices() []model.NodeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.NodeRecord
	for _, n := range c.nodes {
		if !n.Managed && n.MediaClass == "Audio/Sink" {
			out = append(out, n)
		}
	}
	return out
}

// ManagedNodes enumerates nodes this daemon marked as managed.
func (c *Cache) ManagedNodes() []model.NodeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.NodeRecord
	for _, n := range c.nodes {
		if n.Managed {
			out = append(out, n)
		}
	}
	return out
}

// RecordCreatedNode remembers that this process asked the server to
// create a node under logicalName, now assigned serverID.
func (c *Cache) RecordCreatedNode(logicalName string, serverID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdNodes[logicalName] = serverID
}

// CreatedNode looks up the server id this process created for logicalName.
func (c *Cache) CreatedNode(logicalName string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.createdNodes[logicalName]
	return id, ok
}

// IsManagedName reports whether name is one this process asked the
// server to create, regardless of whether the corresponding node has
// been observed on the graph yet. The Server Runtime uses this to mark
// NodeRecord.Managed on node-added, since the Created-Objects Registry
// is the one place that reliably knows "we made this" independent of
// whether the server echoes our marker property back unchanged.
func (c *Cache) IsManagedName(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.createdNodes[name]
	return ok
}

// CreatedNodeNames returns the logical names this process has recorded
// as created, for reconciliation's "what do we expect to exist" pass.
func (c *Cache) CreatedNodeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.createdNodes))
	for name := range c.createdNodes {
		names = append(names, name)
	}
	return names
}

// RecordCreatedLink remembers that this process asked the server to
// create a link under logicalName, now assigned serverID.
func (c *Cache) RecordCreatedLink(logicalName string, serverID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdLinks[logicalName] = serverID
}

// CreatedLink looks up the server id this process created for logicalName.
func (c *Cache) CreatedLink(logicalName string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.createdLinks[logicalName]
	return id, ok
}
