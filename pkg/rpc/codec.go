// Package rpc provides the gRPC transport plumbing shared by every service
// in the fabric. spec.md §1 explicitly excludes "the protobuf-over-HTTP2
// RPC framing" as unspecified; this package honors that by transporting
// JSON-encoded request/response structs over real gRPC connections instead
// of generating .proto stubs, via a custom grpc codec registered under the
// "json" content-subtype. The transport is still genuinely gRPC: pooled
// connections in pkg/balancer are real *grpc.ClientConn values, streams,
// deadlines, and keepalive all come from google.golang.org/grpc.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is passed to grpc.CallContentSubtype on the client and is
// selected automatically by the server from the request's content-subtype.
const CodecName = "json"

// jsonCodec implements grpc/encoding.Codec using encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
