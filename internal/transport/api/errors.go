package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world"
)

func statusFor(code string) int {
	switch code {
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrNameTaken, protocol.ErrBlocked:
		return http.StatusConflict
	case protocol.ErrWorldFull, protocol.ErrWorldBusy:
		return http.StatusServiceUnavailable
	case protocol.ErrRateLimit:
		return http.StatusTooManyRequests
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, code, msg string) {
	writeJSON(w, statusFor(code), protocol.ErrorResponse{Error: protocol.ErrorBody{Code: code, Message: msg}})
}

// writeError maps a world outcome to its HTTP status. Rate limits carry Retry-After in
// whole seconds, rounded up.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var werr *world.Error
	switch {
	case errors.As(err, &werr):
		if werr.Code == protocol.ErrRateLimit && werr.RetryAfter > 0 {
			secs := int(math.Ceil(werr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		if werr.Code == protocol.ErrInternal {
			s.log.Error("internal error", zap.String("message", werr.Message))
		}
		msg := werr.Message
		if msg == "" {
			msg = werr.Code
		}
		writeErrorCode(w, werr.Code, msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorCode(w, protocol.ErrWorldBusy, "world did not answer in time")
	default:
		writeErrorCode(w, protocol.ErrInternal, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeErrorCode(w, protocol.ErrProtoBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}
