package rpc

// JSON-RPC surface version. Requests may pin api_version; notifications carry
// their own version in params.
const (
	rpcAPICurrentVersion      = 1
	rpcAPIMinSupportedVersion = 1
	rpcNotificationVersion    = 1
)

type rpcVersion struct {
	Current             int `json:"current_version"`
	MinSupported        int `json:"min_supported_version"`
	NotificationVersion int `json:"notification_version"`
}

func validateRPCAPIVersion(v *int) *rpcError {
	switch {
	case v == nil:
		return nil
	case *v < rpcAPIMinSupportedVersion:
		return &rpcError{Code: codeVersionDeprecated, Message: "counter rpc api version is no longer supported"}
	case *v > rpcAPICurrentVersion:
		return &rpcError{Code: codeVersionUnsupported, Message: "counter rpc api version is newer than this server"}
	}
	return nil
}

func rpcVersionInfo() rpcVersion {
	return rpcVersion{
		Current:             rpcAPICurrentVersion,
		MinSupported:        rpcAPIMinSupportedVersion,
		NotificationVersion: rpcNotificationVersion,
	}
}
