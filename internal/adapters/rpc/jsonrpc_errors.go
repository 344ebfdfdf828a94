package rpc

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	codeServiceUnavailable  = -32099
	codeIdempotencyConflict = -32090
	codeVersionUnsupported  = -32080
	codeVersionDeprecated   = -32081
)

func rpcInvalidParams(detail string) *rpcError {
	msg := "invalid params"
	if detail != "" {
		msg += ": " + detail
	}
	return &rpcError{Code: codeInvalidParams, Message: msg}
}
