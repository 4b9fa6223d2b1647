package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// JSONCodec carries plain Go request/response structs over gRPC.
// The services are described with hand-written ServiceDescs, so there are no
// generated protobuf messages to marshal.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return b, nil
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func init() {
	// lets clients select the codec with grpc.CallContentSubtype("json")
	encoding.RegisterCodec(JSONCodec{})
}

// ClientCodec is the dial option clients use to talk to this server.
func ClientCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{}))
}
