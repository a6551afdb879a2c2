// Package gcounter implements the grow-only counter workload. Each node owns
// one component of the counter; adds go to the local component and the full
// component map is pushed to every other cluster member, which merges it by
// per-component max. The read value is the component sum.
package gcounter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

const (
	KindAdd    protocol.Kind = "add"
	KindAddOK  protocol.Kind = "add_ok"
	KindRead   protocol.Kind = "read"
	KindReadOK protocol.Kind = "read_ok"
	KindSync   protocol.Kind = "sync"
)

type Add struct {
	MsgID uint64 `json:"msg_id"`
	Delta uint64 `json:"delta"`
}

func (*Add) Kind() protocol.Kind { return KindAdd }

type AddOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

func (*AddOK) Kind() protocol.Kind { return KindAddOK }

type Read struct {
	MsgID uint64 `json:"msg_id"`
}

func (*Read) Kind() protocol.Kind { return KindRead }

type ReadOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Value     uint64 `json:"value"`
}

func (*ReadOK) Kind() protocol.Kind { return KindReadOK }

// Sync pushes the sender's full component map. It is fire-and-forget: there
// is no sync_ok, max-merge makes redelivery harmless.
type Sync struct {
	MsgID    uint64            `json:"msg_id"`
	Counters map[string]uint64 `json:"counters"`
}

func (*Sync) Kind() protocol.Kind { return KindSync }

func NewCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register(KindAdd, func() protocol.Body { return &Add{} })
	c.Register(KindAddOK, func() protocol.Body { return &AddOK{} })
	c.Register(KindRead, func() protocol.Body { return &Read{} })
	c.Register(KindReadOK, func() protocol.Body { return &ReadOK{} })
	c.Register(KindSync, func() protocol.Body { return &Sync{} })
	return c
}

type Node struct {
	id        string
	cluster   []string
	nextMsgID uint64
	counters  map[string]uint64
	log       *zap.Logger
}

func New(log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{counters: make(map[string]uint64), log: log}
}

func (n *Node) nextID() uint64 {
	n.nextMsgID++
	return n.nextMsgID
}

func (n *Node) Handle(env protocol.Envelope) ([]protocol.Envelope, error) {
	switch body := env.Body.(type) {
	case *protocol.Init:
		n.id = body.NodeID
		n.cluster = append([]string(nil), body.NodeIDs...)
		for _, id := range body.NodeIDs {
			n.counters[id] = 0
		}
		n.log.Info("node initialized",
			zap.String("node_id", n.id),
			zap.Int("cluster_size", len(n.cluster)))
		return []protocol.Envelope{
			protocol.Reply(env, &protocol.InitOK{MsgID: n.nextID(), InReplyTo: body.MsgID}),
		}, nil

	case *Add:
		n.counters[n.id] += body.Delta

		var out []protocol.Envelope
		for _, peer := range n.cluster {
			if peer == n.id {
				continue
			}
			out = append(out, protocol.Envelope{
				Src:  n.id,
				Dest: peer,
				Body: &Sync{MsgID: n.nextID(), Counters: n.snapshot()},
			})
		}
		out = append(out, protocol.Reply(env, &AddOK{MsgID: n.nextID(), InReplyTo: body.MsgID}))
		return out, nil

	case *Read:
		var sum uint64
		for _, v := range n.counters {
			sum += v
		}
		return []protocol.Envelope{
			protocol.Reply(env, &ReadOK{MsgID: n.nextID(), InReplyTo: body.MsgID, Value: sum}),
		}, nil

	case *Sync:
		// Max-merge, restricted to known members: components for node ids
		// outside the init membership are dropped.
		for id, remote := range body.Counters {
			if local, ok := n.counters[id]; ok && remote > local {
				n.counters[id] = remote
			}
		}
		return nil, nil

	case *protocol.InitOK, *AddOK, *ReadOK:
		return nil, nil

	default:
		return nil, fmt.Errorf("gcounter: unhandled body type %q", env.Body.Kind())
	}
}

func (n *Node) snapshot() map[string]uint64 {
	cp := make(map[string]uint64, len(n.counters))
	for k, v := range n.counters {
		cp[k] = v
	}
	return cp
}

// Value returns the current component sum.
func (n *Node) Value() uint64 {
	var sum uint64
	for _, v := range n.counters {
		sum += v
	}
	return sum
}
