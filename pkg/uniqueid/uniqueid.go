// Package uniqueid implements the unique-id generator workload. Ids are
// "<node_id>_<msg_id>": the node id is cluster-unique and the message-id
// counter never repeats within a process, so no coordination is needed.
package uniqueid

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

const (
	KindGenerate   protocol.Kind = "generate"
	KindGenerateOK protocol.Kind = "generate_ok"
)

type Generate struct {
	MsgID uint64 `json:"msg_id"`
}

func (*Generate) Kind() protocol.Kind { return KindGenerate }

type GenerateOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	ID        string `json:"id"`
}

func (*GenerateOK) Kind() protocol.Kind { return KindGenerateOK }

func NewCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register(KindGenerate, func() protocol.Body { return &Generate{} })
	c.Register(KindGenerateOK, func() protocol.Body { return &GenerateOK{} })
	return c
}

type Node struct {
	id        string
	nextMsgID uint64
	log       *zap.Logger
}

func New(log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{log: log}
}

func (n *Node) nextID() uint64 {
	n.nextMsgID++
	return n.nextMsgID
}

func (n *Node) Handle(env protocol.Envelope) ([]protocol.Envelope, error) {
	switch body := env.Body.(type) {
	case *protocol.Init:
		n.id = body.NodeID
		n.log.Info("node initialized", zap.String("node_id", n.id))
		return reply(env, &protocol.InitOK{MsgID: n.nextID(), InReplyTo: body.MsgID}), nil

	case *Generate:
		id := n.nextID()
		return reply(env, &GenerateOK{
			MsgID:     id,
			InReplyTo: body.MsgID,
			ID:        fmt.Sprintf("%s_%d", n.id, id),
		}), nil

	case *protocol.InitOK, *GenerateOK:
		return nil, nil

	default:
		return nil, fmt.Errorf("uniqueid: unhandled body type %q", env.Body.Kind())
	}
}

func reply(req protocol.Envelope, body protocol.Body) []protocol.Envelope {
	return []protocol.Envelope{protocol.Reply(req, body)}
}
