package middlewares

import (
	"net/http"
	"strings"

	"github.com/snapguard/snapguard/internal/http/errors"
	"github.com/snapguard/snapguard/internal/security/nodetoken"
)

// =================================================================================
// INTERNAL AUTH MIDDLEWARE (node-to-node)
// =================================================================================

// RequireNodeToken valida que el request venga de otro nodo del cluster,
// autenticado con un token HS256 de corta vida firmado con la secret
// compartida. El ID del nodo emisor queda disponible vía GetCallerNode.
//
// Si verifier es nil el guard rechaza todo: las rutas internas nunca
// quedan abiertas por una secret ausente.
func RequireNodeToken(verifier *nodetoken.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				errors.WriteError(w, errors.ErrUnauthorized.WithDetail("internal auth not configured"))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				errors.WriteError(w, errors.ErrTokenMissing.WithDetail("node token required"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				errors.WriteError(w, errors.ErrTokenInvalid.WithDetail("invalid authorization header format"))
				return
			}

			nodeID, err := verifier.Verify(parts[1])
			if err != nil {
				errors.WriteError(w, errors.ErrTokenInvalid.WithDetail("invalid node token"))
				return
			}

			ctx := setCallerNode(r.Context(), nodeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
