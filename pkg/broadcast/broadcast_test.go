package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

func initNode(t *testing.T, n *Node, id string, cluster ...string) {
	t.Helper()
	replies, err := n.Handle(protocol.Envelope{
		Src:  "c1",
		Dest: id,
		Body: &protocol.Init{MsgID: 1, NodeID: id, NodeIDs: cluster},
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)
}

func TestInitRepliesWithFirstMsgID(t *testing.T) {
	n := New(nil)
	replies, err := n.Handle(protocol.Envelope{
		Src:  "c1",
		Dest: "n1",
		Body: &protocol.Init{MsgID: 1, NodeID: "n1", NodeIDs: []string{"n1"}},
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)

	require.Equal(t, "n1", replies[0].Src)
	require.Equal(t, "c1", replies[0].Dest)
	ok := replies[0].Body.(*protocol.InitOK)
	require.Equal(t, uint64(1), ok.MsgID, "outbound ids start at 1")
	require.Equal(t, uint64(1), ok.InReplyTo)
	require.Equal(t, "n1", n.ID())
}

func TestBroadcastThenReadReturnsValue(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1")

	replies, err := n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Broadcast{MsgID: 2, Message: 1000},
	})
	require.NoError(t, err)
	ack := replies[0].Body.(*BroadcastOK)
	require.Equal(t, uint64(2), ack.MsgID)
	require.Equal(t, uint64(2), ack.InReplyTo)

	replies, err = n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Read{MsgID: 3},
	})
	require.NoError(t, err)
	read := replies[0].Body.(*ReadOK)
	require.Equal(t, []uint64{1000}, read.Messages)
}

func TestReadSnapshotIsACopy(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1")
	_, err := n.Handle(protocol.Envelope{Src: "c1", Dest: "n1", Body: &Broadcast{MsgID: 2, Message: 5}})
	require.NoError(t, err)

	replies, err := n.Handle(protocol.Envelope{Src: "c1", Dest: "n1", Body: &Read{MsgID: 3}})
	require.NoError(t, err)
	read := replies[0].Body.(*ReadOK)
	read.Messages[0] = 999

	require.Equal(t, []uint64{5}, n.Values(), "mutating a read_ok payload must not touch node state")
}

func TestTopologyTakesOwnEntryOnly(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1", "n2", "n3")

	replies, err := n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Topology{MsgID: 2, Topology: map[string][]string{
			"n1": {"n2"},
			"n2": {"n1", "n3"},
			"n3": {"n2"},
		}},
	})
	require.NoError(t, err)
	require.IsType(t, &TopologyOK{}, replies[0].Body)
	require.Equal(t, []string{"n2"}, n.Neighbors())
}

func TestTopologyWithoutOwnEntryIsNoOp(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1", "n2")
	_, err := n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Topology{MsgID: 2, Topology: map[string][]string{"n1": {"n2"}}},
	})
	require.NoError(t, err)

	replies, err := n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Topology{MsgID: 3, Topology: map[string][]string{"n2": {"n1"}}},
	})
	require.NoError(t, err)
	require.IsType(t, &TopologyOK{}, replies[0].Body, "still acknowledged")
	require.Equal(t, []string{"n2"}, n.Neighbors(), "neighbors must be unchanged")
}

func TestGossipUnionIsIdempotent(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1", "n2")

	gossip := &Gossip{MsgID: 10, Messages: []uint64{1, 2}}
	replies, err := n.Handle(protocol.Envelope{Src: "n2", Dest: "n1", Body: gossip})
	require.NoError(t, err)
	ack := replies[0].Body.(*GossipOK)
	require.Equal(t, []uint64{1, 2}, ack.Messages, "gossip_ok echoes the received set")
	require.Equal(t, uint64(10), ack.InReplyTo)
	require.Equal(t, []uint64{1, 2}, n.Values())

	_, err = n.Handle(protocol.Envelope{Src: "n2", Dest: "n1", Body: gossip})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, n.Values(), "re-applying a delta must change nothing")
}

func TestValuesNeverShrink(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1")
	prev := 0
	for _, v := range []uint64{3, 1, 3, 2, 1} {
		_, err := n.Handle(protocol.Envelope{Src: "c1", Dest: "n1", Body: &Broadcast{MsgID: 2, Message: v}})
		require.NoError(t, err)
		cur := len(n.Values())
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	require.Equal(t, []uint64{1, 2, 3}, n.Values())
}

func TestReplyBodiesAreSilent(t *testing.T) {
	n := New(nil)
	initNode(t, n, "n1", "n1")

	for _, body := range []protocol.Body{
		&protocol.InitOK{MsgID: 1, InReplyTo: 1},
		&BroadcastOK{MsgID: 2, InReplyTo: 2},
		&ReadOK{MsgID: 3, InReplyTo: 3, Messages: []uint64{1}},
		&TopologyOK{MsgID: 4, InReplyTo: 4},
	} {
		replies, err := n.Handle(protocol.Envelope{Src: "n2", Dest: "n1", Body: body})
		require.NoError(t, err)
		require.Empty(t, replies, "%s must not produce a reply", body.Kind())
	}

	// gossip_ok is also silent but does mutate the per-neighbor record.
	replies, err := n.Handle(protocol.Envelope{
		Src: "n2", Dest: "n1",
		Body: &GossipOK{MsgID: 5, InReplyTo: 5, Messages: []uint64{1}},
	})
	require.NoError(t, err)
	require.Empty(t, replies)
}
