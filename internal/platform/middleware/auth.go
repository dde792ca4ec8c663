package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// TokenValidator resolves a bearer token to the caller id it was issued for.
type TokenValidator interface {
	CallerIDFromToken(token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller id in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "Missing or invalid Authorization header",
				})
				return
			}

			callerID, err := validator.CallerIDFromToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "Invalid or expired token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCallerID(ctx, callerID)))
		})
	}
}
