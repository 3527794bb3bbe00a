package port

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/entity"
)

// Provider is the capability handle bound to one node endpoint. Building a
// Provider must not touch the network; connections are opened on demand.
type Provider interface {
	Endpoint() entity.Endpoint
	// Call submits a single JSON-RPC call and decodes the result into result.
	Call(ctx context.Context, result any, method string, args ...any) error
	// Subscribe opens a live subscription delivering notifications to channel.
	Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}
