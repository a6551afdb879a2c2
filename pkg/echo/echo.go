// Package echo implements the echo responder workload: every echo request is
// answered with an echo_ok carrying the same payload.
package echo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

const (
	KindEcho   protocol.Kind = "echo"
	KindEchoOK protocol.Kind = "echo_ok"
)

type Echo struct {
	MsgID uint64 `json:"msg_id"`
	Echo  string `json:"echo"`
}

func (*Echo) Kind() protocol.Kind { return KindEcho }

type EchoOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Echo      string `json:"echo"`
}

func (*EchoOK) Kind() protocol.Kind { return KindEchoOK }

func NewCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register(KindEcho, func() protocol.Body { return &Echo{} })
	c.Register(KindEchoOK, func() protocol.Body { return &EchoOK{} })
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

	case *Echo:
		return reply(env, &EchoOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Echo:      body.Echo,
		}), nil

	case *protocol.InitOK, *EchoOK:
		return nil, nil

	default:
		return nil, fmt.Errorf("echo: unhandled body type %q", env.Body.Kind())
	}
}

func reply(req protocol.Envelope, body protocol.Body) []protocol.Envelope {
	return []protocol.Envelope{protocol.Reply(req, body)}
}
