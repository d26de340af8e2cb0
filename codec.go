package main

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeMsgpack encodes v with the same field names as its JSON form
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// frameMessages is one tick rendered in a single encoding, in send order
type frameMessages struct {
	binary bool
	msgs   [][]byte
}

// encodeFrame renders the explosion batch (if any) followed by the snapshot
func encodeFrame(f Frame, encoding string) (frameMessages, error) {
	marshal := json.Marshal
	out := frameMessages{}
	if encoding == EncodingMsgpack {
		marshal = encodeMsgpack
		out.binary = true
	}
	if len(f.Explosions) > 0 {
		data, err := marshal(Envelope{Type: MsgExplosionBatch, Payload: f.Explosions})
		if err != nil {
			return out, err
		}
		out.msgs = append(out.msgs, data)
	}
	data, err := marshal(Envelope{Type: MsgGameState, Payload: f.State})
	if err != nil {
		return out, err
	}
	out.msgs = append(out.msgs, data)
	return out, nil
}
