package app

import "aetos-counter/go-backend/internal/adapters/rpc"

var _ rpc.Service = (*Service)(nil)
