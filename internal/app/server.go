package app

import (
	"aetos-counter/go-backend/internal/adapters/rpc"
	"aetos-counter/go-backend/internal/config"
)

// NewRPCServer wires the counter service and the RPC transport.
func NewRPCServer(cfg config.Config, opts ...Option) (*rpc.Server, *Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	svc, err := New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rpc.NewServer(cfg.RPC, svc,
		rpc.WithLogger(o.logger),
		rpc.WithMetricsHandler(svc.Metrics().Handler()),
	), svc, nil
}
