package commitlog

import (
	"reflect"
	"testing"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

func TestAppendAssignsDenseOffsetsPerKey(t *testing.T) {
	s := NewStore()

	for i, want := range []uint64{0, 1, 2} {
		if got := s.Append("k1", uint64(i*10)); got != want {
			t.Fatalf("Append #%d = offset %d, want %d", i, got, want)
		}
	}
	if got := s.Append("k2", 99); got != 0 {
		t.Fatalf("first append to a new key = offset %d, want 0", got)
	}
}

func TestReadFromOffset(t *testing.T) {
	s := NewStore()
	s.Append("k1", 10)
	s.Append("k1", 20)
	s.Append("k1", 30)

	entries, ok := s.Read("k1", 1)
	if !ok {
		t.Fatal("Read(k1) !ok")
	}
	want := []Entry{{1, 20}, {2, 30}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("Read(k1, 1) = %v, want %v", entries, want)
	}

	if _, ok := s.Read("missing", 0); ok {
		t.Fatal("Read of an absent key must report !ok")
	}
}

func TestCommitAndCommitted(t *testing.T) {
	s := NewStore()
	s.Commit(map[string]uint64{"k1": 2, "k2": 5})
	s.Commit(map[string]uint64{"k1": 3}) // overwrite

	got := s.Committed([]string{"k1", "k2", "k3"})
	want := map[string]uint64{"k1": 3, "k2": 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Committed = %v, want %v", got, want)
	}
}

func TestHandlerFlow(t *testing.T) {
	n := New(NewStore(), nil)

	replies, err := n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &protocol.Init{MsgID: 1, NodeID: "n1", NodeIDs: []string{"n1"}},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, ok := replies[0].Body.(*protocol.InitOK); !ok {
		t.Fatalf("init reply = %T, want *protocol.InitOK", replies[0].Body)
	}

	// Two sends to the same key get offsets 0 and 1.
	for i, want := range []uint64{0, 1} {
		replies, err = n.Handle(protocol.Envelope{
			Src: "c1", Dest: "n1",
			Body: &Send{MsgID: uint64(2 + i), Key: "k1", Msg: uint64(100 + i)},
		})
		if err != nil {
			t.Fatalf("send #%d: %v", i, err)
		}
		ok := replies[0].Body.(*SendOK)
		if ok.Offset != want {
			t.Fatalf("send #%d offset = %d, want %d", i, ok.Offset, want)
		}
	}

	replies, err = n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &Poll{MsgID: 4, Offsets: map[string]uint64{"k1": 1, "nope": 0}},
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	poll := replies[0].Body.(*PollOK)
	if want := map[string][]Entry{"k1": {{1, 101}}}; !reflect.DeepEqual(poll.Msgs, want) {
		t.Fatalf("poll msgs = %v, want %v", poll.Msgs, want)
	}

	replies, err = n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &CommitOffsets{MsgID: 5, Offsets: map[string]uint64{"k1": 1}},
	})
	if err != nil {
		t.Fatalf("commit_offsets: %v", err)
	}
	if _, ok := replies[0].Body.(*CommitOffsetsOK); !ok {
		t.Fatalf("commit reply = %T, want *CommitOffsetsOK", replies[0].Body)
	}

	replies, err = n.Handle(protocol.Envelope{
		Src: "c1", Dest: "n1",
		Body: &ListCommittedOffsets{MsgID: 6, Keys: []string{"k1", "k2"}},
	})
	if err != nil {
		t.Fatalf("list_committed_offsets: %v", err)
	}
	list := replies[0].Body.(*ListCommittedOffsetsOK)
	if want := map[string]uint64{"k1": 1}; !reflect.DeepEqual(list.Offsets, want) {
		t.Fatalf("committed offsets = %v, want %v", list.Offsets, want)
	}
}

func TestReplyBodiesAreIgnored(t *testing.T) {
	n := New(NewStore(), nil)
	for _, body := range []protocol.Body{
		&SendOK{MsgID: 1, InReplyTo: 1},
		&PollOK{MsgID: 2, InReplyTo: 2},
		&CommitOffsetsOK{MsgID: 3, InReplyTo: 3},
		&ListCommittedOffsetsOK{MsgID: 4, InReplyTo: 4},
	} {
		replies, err := n.Handle(protocol.Envelope{Src: "c1", Dest: "n1", Body: body})
		if err != nil {
			t.Fatalf("%s: %v", body.Kind(), err)
		}
		if len(replies) != 0 {
			t.Fatalf("%s must not be replied to", body.Kind())
		}
	}
}
