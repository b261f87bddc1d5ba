package agentrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName selects the JSON wire codec for every call this package
// makes; see DESIGN.md for why this project encodes RPC payloads as JSON
// rather than generated protobuf messages.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
