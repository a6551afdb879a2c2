package protocol_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rafald1/distributed-system/pkg/protocol"
)

type ping struct {
	MsgID uint64 `json:"msg_id"`
}

func (*ping) Kind() protocol.Kind { return "ping" }

func newCodec() *protocol.Codec {
	c := protocol.NewCodec()
	c.Register("ping", func() protocol.Body { return &ping{} })
	return c
}

func TestDecodeInit(t *testing.T) {
	c := newCodec()
	line := `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`

	env, err := c.DecodeLine([]byte(line))
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if env.Src != "c1" || env.Dest != "n1" {
		t.Fatalf("envelope src/dest = %q/%q, want c1/n1", env.Src, env.Dest)
	}
	init, ok := env.Body.(*protocol.Init)
	if !ok {
		t.Fatalf("body = %T, want *protocol.Init", env.Body)
	}
	if init.MsgID != 1 || init.NodeID != "n1" || len(init.NodeIDs) != 2 {
		t.Fatalf("init body decoded wrong: %+v", init)
	}
}

func TestEncodeInjectsTypeTag(t *testing.T) {
	c := newCodec()
	env := protocol.Envelope{
		Src:  "n1",
		Dest: "c1",
		Body: &protocol.InitOK{MsgID: 1, InReplyTo: 1},
	}

	line, err := c.EncodeLine(env)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Fatal("encoded line must be newline-terminated")
	}
	if bytes.ContainsRune(line[:len(line)-1], '\n') {
		t.Fatal("encoded line must not contain embedded newlines")
	}

	var raw struct {
		Src  string          `json:"src"`
		Dest string          `json:"dest"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		t.Fatalf("re-parse encoded line: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw.Body, &body); err != nil {
		t.Fatalf("re-parse body: %v", err)
	}
	if body["type"] != "init_ok" {
		t.Fatalf("body type = %v, want init_ok", body["type"])
	}
	if body["msg_id"] != float64(1) || body["in_reply_to"] != float64(1) {
		t.Fatalf("body ids wrong: %v", body)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newCodec()
	env := protocol.Envelope{Src: "n1", Dest: "n2", Body: &ping{MsgID: 42}}

	line, err := c.EncodeLine(env)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	got, err := c.DecodeLine(line)
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	p, ok := got.Body.(*ping)
	if !ok {
		t.Fatalf("body = %T, want *ping", got.Body)
	}
	if got.Src != "n1" || got.Dest != "n2" || p.MsgID != 42 {
		t.Fatalf("round trip lost data: %+v body %+v", got, p)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	c := newCodec()
	cases := []struct {
		name string
		line string
	}{
		{"not json", "garbage"},
		{"missing body", `{"src":"a","dest":"b"}`},
		{"unknown type", `{"src":"a","dest":"b","body":{"type":"bogus"}}`},
		{"body not object", `{"src":"a","dest":"b","body":7}`},
	}
	for _, tc := range cases {
		if _, err := c.DecodeLine([]byte(tc.line)); err == nil {
			t.Fatalf("%s: expected decode error", tc.name)
		}
	}
}

func TestReplySwapsSrcDest(t *testing.T) {
	req := protocol.Envelope{Src: "c1", Dest: "n1", Body: &ping{MsgID: 1}}
	resp := protocol.Reply(req, &protocol.InitOK{MsgID: 1, InReplyTo: 1})
	if resp.Src != "n1" || resp.Dest != "c1" {
		t.Fatalf("reply src/dest = %q/%q, want n1/c1", resp.Src, resp.Dest)
	}
}
