// Package protocol implements the line-delimited JSON envelope shared by all
// node binaries. An envelope is {"src":...,"dest":...,"body":{...}} where the
// body is a tagged variant selected by its "type" field. Each workload builds
// a Codec and registers the body kinds it understands; anything outside that
// set is a decode error, since the harness is trusted to speak the protocol
// exactly.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of a body's "type" discriminator on the wire.
type Kind string

// Kinds shared by every workload. Workload-specific kinds live in their
// workload package and register themselves into that workload's Codec.
const (
	KindInit   Kind = "init"
	KindInitOK Kind = "init_ok"
)

// Body is one variant of the envelope payload.
type Body interface {
	Kind() Kind
}

// Envelope is the outer message wrapper.
type Envelope struct {
	Src  string
	Dest string
	Body Body
}

// Reply builds the response envelope for a request: src and dest swapped,
// carrying the given body.
func Reply(req Envelope, body Body) Envelope {
	return Envelope{Src: req.Dest, Dest: req.Src, Body: body}
}

// Init assigns this node its identity. NodeIDs lists full cluster
// membership; most workloads consume only NodeID.
type Init struct {
	MsgID   uint64   `json:"msg_id"`
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

func (*Init) Kind() Kind { return KindInit }

type InitOK struct {
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

func (*InitOK) Kind() Kind { return KindInitOK }

// Codec decodes and encodes single protocol lines against a closed set of
// registered body kinds.
type Codec struct {
	kinds map[Kind]func() Body
}

// NewCodec returns a codec that understands the shared init/init_ok kinds.
func NewCodec() *Codec {
	c := &Codec{kinds: make(map[Kind]func() Body)}
	c.Register(KindInit, func() Body { return &Init{} })
	c.Register(KindInitOK, func() Body { return &InitOK{} })
	return c
}

// Register adds a body kind. newBody must return a pointer the decoder can
// unmarshal into.
func (c *Codec) Register(k Kind, newBody func() Body) {
	c.kinds[k] = newBody
}

type rawEnvelope struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// DecodeLine parses one input line into a typed envelope. Malformed JSON, a
// missing body, or an unregistered body kind are all errors; callers treat
// them as fatal.
func (c *Codec) DecodeLine(line []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(line, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(raw.Body) == 0 {
		return Envelope{}, errors.New("decode envelope: missing body")
	}
	var tag struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw.Body, &tag); err != nil {
		return Envelope{}, fmt.Errorf("decode body tag: %w", err)
	}
	newBody, ok := c.kinds[tag.Type]
	if !ok {
		return Envelope{}, fmt.Errorf("decode body: unknown type %q", tag.Type)
	}
	body := newBody()
	if err := json.Unmarshal(raw.Body, body); err != nil {
		return Envelope{}, fmt.Errorf("decode %s body: %w", tag.Type, err)
	}
	return Envelope{Src: raw.Src, Dest: raw.Dest, Body: body}, nil
}

// EncodeLine serializes an envelope as one newline-terminated JSON line with
// the body's "type" tag injected.
func (c *Codec) EncodeLine(env Envelope) ([]byte, error) {
	if env.Body == nil {
		return nil, errors.New("encode envelope: nil body")
	}
	body, err := taggedJSON(env.Body)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(rawEnvelope{Src: env.Src, Dest: env.Dest, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return append(out, '\n'), nil
}

func taggedJSON(body Body) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", body.Kind(), err)
	}
	tag, err := json.Marshal(struct {
		Type Kind `json:"type"`
	}{body.Kind()})
	if err != nil {
		return nil, fmt.Errorf("encode %s tag: %w", body.Kind(), err)
	}
	if len(raw) <= 2 { // body marshaled to "{}"
		return tag, nil
	}
	merged := make([]byte, 0, len(tag)+len(raw))
	merged = append(merged, tag[:len(tag)-1]...)
	merged = append(merged, ',')
	merged = append(merged, raw[1:]...)
	return merged, nil
}
