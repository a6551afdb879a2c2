// Package commitlog implements the replicated-log workload: per-key
// append-only logs with dense offsets, plus committed consumer offsets.
package commitlog

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

const (
	KindSend                   protocol.Kind = "send"
	KindSendOK                 protocol.Kind = "send_ok"
	KindPoll                   protocol.Kind = "poll"
	KindPollOK                 protocol.Kind = "poll_ok"
	KindCommitOffsets          protocol.Kind = "commit_offsets"
	KindCommitOffsetsOK        protocol.Kind = "commit_offsets_ok"
	KindListCommittedOffsets   protocol.Kind = "list_committed_offsets"
	KindListCommittedOffsetsOK protocol.Kind = "list_committed_offsets_ok"
)

type Send struct {
	MsgID uint64 `json:"msg_id"`
	Key   string `json:"key"`
	Msg   uint64 `json:"msg"`
}

func (*Send) Kind() protocol.Kind { return KindSend }

type SendOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Offset    uint64 `json:"offset"`
}

func (*SendOK) Kind() protocol.Kind { return KindSendOK }

type Poll struct {
	MsgID   uint64            `json:"msg_id"`
	Offsets map[string]uint64 `json:"offsets"`
}

func (*Poll) Kind() protocol.Kind { return KindPoll }

type PollOK struct {
	MsgID     uint64             `json:"msg_id"`
	InReplyTo uint64             `json:"in_reply_to"`
	Msgs      map[string][]Entry `json:"msgs"`
}

func (*PollOK) Kind() protocol.Kind { return KindPollOK }

type CommitOffsets struct {
	MsgID   uint64            `json:"msg_id"`
	Offsets map[string]uint64 `json:"offsets"`
}

func (*CommitOffsets) Kind() protocol.Kind { return KindCommitOffsets }

type CommitOffsetsOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

func (*CommitOffsetsOK) Kind() protocol.Kind { return KindCommitOffsetsOK }

type ListCommittedOffsets struct {
	MsgID uint64   `json:"msg_id"`
	Keys  []string `json:"keys"`
}

func (*ListCommittedOffsets) Kind() protocol.Kind { return KindListCommittedOffsets }

type ListCommittedOffsetsOK struct {
	MsgID     uint64            `json:"msg_id"`
	InReplyTo uint64            `json:"in_reply_to"`
	Offsets   map[string]uint64 `json:"offsets"`
}

func (*ListCommittedOffsetsOK) Kind() protocol.Kind { return KindListCommittedOffsetsOK }

func NewCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register(KindSend, func() protocol.Body { return &Send{} })
	c.Register(KindSendOK, func() protocol.Body { return &SendOK{} })
	c.Register(KindPoll, func() protocol.Body { return &Poll{} })
	c.Register(KindPollOK, func() protocol.Body { return &PollOK{} })
	c.Register(KindCommitOffsets, func() protocol.Body { return &CommitOffsets{} })
	c.Register(KindCommitOffsetsOK, func() protocol.Body { return &CommitOffsetsOK{} })
	c.Register(KindListCommittedOffsets, func() protocol.Body { return &ListCommittedOffsets{} })
	c.Register(KindListCommittedOffsetsOK, func() protocol.Body { return &ListCommittedOffsetsOK{} })
	return c
}

type Node struct {
	id        string
	nextMsgID uint64
	store     *Store
	log       *zap.Logger
}

func New(store *Store, log *zap.Logger) *Node {
	if store == nil {
		store = NewStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{store: store, log: log}
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

	case *Send:
		offset := n.store.Append(body.Key, body.Msg)
		return reply(env, &SendOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Offset:    offset,
		}), nil

	case *Poll:
		msgs := make(map[string][]Entry, len(body.Offsets))
		for key, from := range body.Offsets {
			if entries, ok := n.store.Read(key, from); ok {
				msgs[key] = entries
			}
		}
		return reply(env, &PollOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Msgs:      msgs,
		}), nil

	case *CommitOffsets:
		n.store.Commit(body.Offsets)
		return reply(env, &CommitOffsetsOK{MsgID: n.nextID(), InReplyTo: body.MsgID}), nil

	case *ListCommittedOffsets:
		return reply(env, &ListCommittedOffsetsOK{
			MsgID:     n.nextID(),
			InReplyTo: body.MsgID,
			Offsets:   n.store.Committed(body.Keys),
		}), nil

	case *protocol.InitOK, *SendOK, *PollOK, *CommitOffsetsOK, *ListCommittedOffsetsOK:
		return nil, nil

	default:
		return nil, fmt.Errorf("commitlog: unhandled body type %q", env.Body.Kind())
	}
}

func reply(req protocol.Envelope, body protocol.Body) []protocol.Envelope {
	return []protocol.Envelope{protocol.Reply(req, body)}
}
