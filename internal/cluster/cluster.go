// Package cluster implements the cluster membership (gossip) and
// partitioner-driving loop of spec.md §4.9. Gossip membership is UDP-based
// via hashicorp/memberlist — the direct ecosystem equivalent of the
// original's chitchat crate (see DESIGN.md; no pack repo grounds a gossip
// library in code, so this is named rather than grounded).
package cluster

import (
	"context"
	"fmt"

	"github.com/hashicorp/memberlist"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/rendezvous"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Config configures gossip membership and the local node's stable identity.
type Config struct {
	ClusterID   string
	NodeID      string // stable identity, "host/ts" per spec.md §6
	GossipBind  string
	GossipAddr  string
	SeedNodes   []string
}

// Cluster owns the gossip membership list and the rendezvous client it
// keeps in sync with it.
type Cluster struct {
	cfg    Config
	list   *memberlist.Memberlist
	rv     *rendezvous.Client
	events chan memberlist.NodeEvent
	log    logger.Logger
}

// New joins (or starts, if no seeds respond) a gossip cluster. Single-
// instance deployments should skip calling New entirely and use
// rendezvous.New([]string{nodeID}) directly instead (spec.md §4.9,
// "Single-instance deployments skip the gossip entirely").
func New(cfg Config, log logger.Logger) (*Cluster, error) {
	mcfg := memberlist.DefaultLANConfig()
	mcfg.Name = cfg.NodeID
	if cfg.GossipBind != "" {
		host, port, err := splitHostPort(cfg.GossipBind)
		if err != nil {
			return nil, fmt.Errorf("cluster: parse gossip_bind: %w", err)
		}
		mcfg.BindAddr, mcfg.BindPort = host, port
	}
	if cfg.GossipAddr != "" {
		host, port, err := splitHostPort(cfg.GossipAddr)
		if err != nil {
			return nil, fmt.Errorf("cluster: parse gossip_addr: %w", err)
		}
		mcfg.AdvertiseAddr, mcfg.AdvertisePort = host, port
	}

	events := make(chan memberlist.NodeEvent, 32)
	mcfg.Events = &memberlist.ChannelEventDelegate{Ch: events}

	list, err := memberlist.Create(mcfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: create memberlist: %w", err)
	}

	if len(cfg.SeedNodes) > 0 {
		if _, err := list.Join(cfg.SeedNodes); err != nil {
			log.Warn("cluster: failed to join seed nodes, continuing as sole member", "error", err)
		}
	}

	c := &Cluster{
		cfg:    cfg,
		list:   list,
		rv:     rendezvous.New(nodeNames(list.Members())),
		events: events,
		log:    log,
	}
	return c, nil
}

// Rendezvous returns the live rendezvous client backing ownership queries.
func (c *Cluster) Rendezvous() *rendezvous.Client { return c.rv }

// NodeID returns this node's stable identity.
func (c *Cluster) NodeID() string { return c.cfg.NodeID }

// Leave gracefully departs the gossip cluster.
func (c *Cluster) Leave(timeout int) error {
	return c.list.Leave(secondsToDuration(timeout))
}

// Run is the cluster watcher loop (spec.md §4.9 "Cluster loop"): on any
// membership change, recompute the previous and new owned trigger sets and
// emit TriggerRemove(prev−new) / TriggerAdd(new−prev) to the post office.
func (c *Cluster) Run(ctx context.Context, st *store.Store, po *postoffice.PostOffice) error {
	owned := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.events:
			// Drain any additional pending events from this membership
			// flap before recomputing, so a flap settles into one
			// Add/Remove pair rather than one per intermediate state.
			drain(c.events)

			c.rv.SetNodes(nodeNames(c.list.Members()))

			ids, err := st.ListAllTriggerIDs(ctx)
			if err != nil {
				c.log.Error("cluster: failed to list trigger ids", "error", err)
				continue
			}

			newOwned := make(map[string]bool, len(ids))
			for _, id := range ids {
				if c.rv.Owns(c.cfg.NodeID, id.String()) {
					newOwned[id.String()] = true
				}
			}

			added, removed := diff(owned, newOwned)
			if len(added) > 0 {
				postoffice.Post(po, messages.TriggerAdd{TriggerIDs: parseUUIDs(added)})
			}
			if len(removed) > 0 {
				postoffice.Post(po, messages.TriggerRemove{TriggerIDs: parseUUIDs(removed)})
			}
			owned = newOwned
		}
	}
}
