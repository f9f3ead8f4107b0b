package postgres

import (
	"context"
	"time"
)

// StoreConfig holds settings shared by the PostgreSQL stores.
type StoreConfig struct {
	// QueryTimeoutSeconds bounds each store operation. 0 applies the default
	// of 10 seconds; a negative value disables the store-side timeout.
	QueryTimeoutSeconds int32
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
}

func (c *StoreConfig) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c == nil || c.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.QueryTimeoutSeconds)*time.Second)
}
