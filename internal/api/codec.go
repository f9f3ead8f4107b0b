// Package api holds the wire types and procedure names of the planning
// service, shared by the server and its clients.
package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// Codec encodes plain Go structs as JSON. It replaces connect's protojson
// codec under the same name, so unary calls use application/json and streams
// application/connect+json.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

// WithCodec returns the option that installs Codec on a handler or client.
func WithCodec() connect.Option {
	return connect.WithCodec(Codec{})
}
