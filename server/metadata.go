package server

import (
	"context"
	"net/http"
)

// Metadata describes where a call came from.
type Metadata struct {
	// RemoteAddr is the peer address of the connection or HTTP request.
	RemoteAddr string
	// Header holds the HTTP request headers. It is nil for framed TCP calls.
	Header http.Header
}

type metadataKey struct{}

// NewContext returns a copy of ctx carrying md.
func NewContext(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// MetadataFromContext returns the metadata of the call being served.
func MetadataFromContext(ctx context.Context) (Metadata, bool) {
	md, ok := ctx.Value(metadataKey{}).(Metadata)
	return md, ok
}
