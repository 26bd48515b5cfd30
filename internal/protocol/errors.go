package protocol

const (
	// Transport validation (malformed JSON, missing fields).
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"
	ErrWorldFull = "E_WORLD_FULL"

	// Rule/action layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNotFound     = "E_NOT_FOUND"
	ErrNameTaken    = "E_NAME_TAKEN"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrBlocked      = "E_BLOCKED"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrWorldFull:       {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrNameTaken:       {},
	ErrUnauthorized:    {},
	ErrRateLimit:       {},
	ErrBlocked:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
