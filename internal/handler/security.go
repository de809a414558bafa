package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Security authenticates requests by the HMAC-SHA256 of their API key.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given key repository and pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Middleware rejects requests without a known API key with 401 and stores the
// key identity in the request context.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "unauthorized"))
			return
		}

		hash := auth.Hash(s.pepper, key)
		info, err := s.apikeys.FindByHash(r.Context(), hash)
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "unauthorized"))
			return
		case err != nil:
			fail(w, r, errors.Wrap(err, "find api key"))
			return
		}
		// The row came back by hash; compare anyway in constant time.
		if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "unauthorized"))
			return
		}

		ctx := auth.WithInfo(r.Context(), info)
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
