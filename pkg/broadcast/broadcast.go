// Package broadcast implements the gossip-based broadcast workload: every
// value delivered to any node must eventually reach all nodes, with
// per-neighbor anti-entropy tracking to keep retransmission bounded.
package broadcast

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

const (
	KindBroadcast   protocol.Kind = "broadcast"
	KindBroadcastOK protocol.Kind = "broadcast_ok"
	KindRead        protocol.Kind = "read"
	KindReadOK      protocol.Kind = "read_ok"
	KindTopology    protocol.Kind = "topology"
	KindTopologyOK  protocol.Kind = "topology_ok"
	KindGossip      protocol.Kind = "gossip"
	KindGossipOK    protocol.Kind = "gossip_ok"
)

type Broadcast struct {
	MsgID   uint64 `json:"msg_id"`
	Message uint64 `json:"message"`
}

func (*Broadcast) Kind() protocol.Kind { return KindBroadcast }

type BroadcastOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

func (*BroadcastOK) Kind() protocol.Kind { return KindBroadcastOK }

type Read struct {
	MsgID uint64 `json:"msg_id"`
}

func (*Read) Kind() protocol.Kind { return KindRead }

type ReadOK struct {
	MsgID     uint64   `json:"msg_id"`
	InReplyTo uint64   `json:"in_reply_to"`
	Messages  []uint64 `json:"messages"`
}

func (*ReadOK) Kind() protocol.Kind { return KindReadOK }

// Topology carries the neighbor assignment for every node in the cluster;
// each node consumes only its own entry.
type Topology struct {
	MsgID    uint64              `json:"msg_id"`
	Topology map[string][]string `json:"topology"`
}

func (*Topology) Kind() protocol.Kind { return KindTopology }

type TopologyOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

func (*TopologyOK) Kind() protocol.Kind { return KindTopologyOK }

type Gossip struct {
	MsgID    uint64   `json:"msg_id"`
	Messages []uint64 `json:"messages"`
}

func (*Gossip) Kind() protocol.Kind { return KindGossip }

// GossipOK echoes back the gossiped values so the sender learns this node
// now holds them.
type GossipOK struct {
	MsgID     uint64   `json:"msg_id"`
	InReplyTo uint64   `json:"in_reply_to"`
	Messages  []uint64 `json:"messages"`
}

func (*GossipOK) Kind() protocol.Kind { return KindGossipOK }

// NewCodec returns the codec for the broadcast wire protocol.
func NewCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register(KindBroadcast, func() protocol.Body { return &Broadcast{} })
	c.Register(KindBroadcastOK, func() protocol.Body { return &BroadcastOK{} })
	c.Register(KindRead, func() protocol.Body { return &Read{} })
	c.Register(KindReadOK, func() protocol.Body { return &ReadOK{} })
	c.Register(KindTopology, func() protocol.Body { return &Topology{} })
	c.Register(KindTopologyOK, func() protocol.Body { return &TopologyOK{} })
	c.Register(KindGossip, func() protocol.Body { return &Gossip{} })
	c.Register(KindGossipOK, func() protocol.Body { return &GossipOK{} })
	return c
}

// Node holds the broadcast state. It is owned by the event loop: all methods
// are called from a single goroutine.
type Node struct {
	id        string
	nextMsgID uint64
	values    map[uint64]struct{}
	neighbors []string
	// seenBy records, per peer, the values that peer has acknowledged via
	// gossip_ok. A missing entry means assume the peer knows nothing.
	seenBy map[string]map[uint64]struct{}
	log    *zap.Logger
}

func New(log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		values: make(map[uint64]struct{}),
		seenBy: make(map[string]map[uint64]struct{}),
		log:    log,
	}
}

// nextID increments the outbound message-id counter and returns it. Ids start
// at 1 and are never reused within a process lifetime.
func (n *Node) nextID() uint64 {
	n.nextMsgID++
	return n.nextMsgID
}

// Handle applies one inbound message and returns at most one reply. Gossip
// fan-out happens on timer ticks, not here.
func (n *Node) Handle(env protocol.Envelope) ([]protocol.Envelope, error) {
	switch body := env.Body.(type) {
	case *protocol.Init:
		n.id = body.NodeID
		n.log.Info("node initialized", zap.String("node_id", n.id))
		return reply(env, &protocol.InitOK{MsgID: n.nextID(), InReplyTo: body.MsgID}), nil

	case *Broadcast:
		n.values[body.Message] = struct{}{}
		return reply(env, &BroadcastOK{MsgID: n.nextID(), InReplyTo: body.MsgID}), nil

	case *Read:
		return reply(env, &ReadOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Messages:  n.Values(),
		}), nil

	case *Topology:
		// A mapping without our entry means no reassignment, not an error.
		if neighbors, ok := body.Topology[n.id]; ok {
			n.neighbors = neighbors
			n.log.Info("neighbors assigned", zap.Strings("neighbors", neighbors))
		}
		return reply(env, &TopologyOK{MsgID: n.nextID(), InReplyTo: body.MsgID}), nil

	case *Gossip:
		for _, v := range body.Messages {
			n.values[v] = struct{}{}
		}
		return reply(env, &GossipOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Messages:  body.Messages,
		}), nil

	case *GossipOK:
		seen := n.seenBy[env.Src]
		if seen == nil {
			seen = make(map[uint64]struct{}, len(body.Messages))
			n.seenBy[env.Src] = seen
		}
		for _, v := range body.Messages {
			seen[v] = struct{}{}
		}
		return nil, nil

	case *protocol.InitOK, *BroadcastOK, *ReadOK, *TopologyOK:
		// Replies are never acted on further.
		return nil, nil

	default:
		return nil, fmt.Errorf("broadcast: unhandled body type %q", env.Body.Kind())
	}
}

// Gossip computes one anti-entropy round: for each neighbor, the values it
// has not acknowledged yet. Values stay in the delta until a gossip_ok
// confirms them, so the next tick is the retry mechanism.
func (n *Node) Gossip() []protocol.Envelope {
	var out []protocol.Envelope
	for _, peer := range n.neighbors {
		delta := n.delta(peer)
		if len(delta) == 0 {
			continue
		}
		out = append(out, protocol.Envelope{
			Src:  n.id,
			Dest: peer,
			Body: &Gossip{MsgID: n.nextID(), Messages: delta},
		})
	}
	return out
}

// delta returns the known values not yet acknowledged by peer, sorted for
// deterministic wire output.
func (n *Node) delta(peer string) []uint64 {
	seen := n.seenBy[peer]
	out := make([]uint64, 0, len(n.values))
	for v := range n.values {
		if _, ok := seen[v]; !ok {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// Values returns a sorted snapshot of the known value set.
func (n *Node) Values() []uint64 {
	out := make([]uint64, 0, len(n.values))
	for v := range n.values {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Neighbors returns the current neighbor assignment.
func (n *Node) Neighbors() []string {
	return slices.Clone(n.neighbors)
}

// ID returns the node identity assigned by init.
func (n *Node) ID() string { return n.id }

func reply(req protocol.Envelope, body protocol.Body) []protocol.Envelope {
	return []protocol.Envelope{protocol.Reply(req, body)}
}
