package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/pkg/httpmiddleware"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

type apiKeyCtx struct{}

// apiKeyID returns the ID of the key that authenticated the request.
func apiKeyID(ctx context.Context) string {
	id, _ := ctx.Value(apiKeyCtx{}).(string)
	return id
}

// RequireAPIKey authenticates requests by the HMAC-SHA256 of the api_key
// header under the configured pepper and requires scope on the matched key.
// Every failure answers 401 with the same message.
func (h *Handler) RequireAPIKey(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := h.authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			if !ok {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyCtx{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *Handler) authenticate(ctx context.Context, key, scope string) (string, bool) {
	if key == "" || h.apikeys == nil {
		return "", false
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := h.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		zctx.From(ctx).Debug("API key rejected", zap.Error(err))
		return "", false
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return "", false
	}
	if !info.HasScope(scope) {
		zctx.From(ctx).Warn("API key lacks scope", zap.String("key", info.ID), zap.String("scope", scope))
		return "", false
	}
	return info.ID, true
}
