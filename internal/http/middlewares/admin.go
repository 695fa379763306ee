package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/snapguard/snapguard/internal/http/errors"
)

// =================================================================================
// ADMIN MIDDLEWARES
// =================================================================================

// AdminConfig configura el guard de las rutas de administración.
type AdminConfig struct {
	// APIKey en claro. Solo se usa si APIKeyHash está vacío.
	APIKey string
	// APIKeyHash hash bcrypt de la key. Si está presente tiene precedencia.
	APIKeyHash string
	// Enforce si es true, exige la key en cada request.
	// Si es false (modo desarrollo), siempre permite.
	Enforce bool
}

// adminKeyFromRequest extrae la key del header X-Admin-API-Key o del
// header Authorization en formato "Bearer <key>".
func adminKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-Admin-API-Key")); k != "" {
		return k
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAdminKey valida la API key de administración.
// Reglas (en este orden):
//  1. Si Enforce == false: permitir (modo compatible por defecto).
//  2. Sin key en la request => 401.
//  3. Si hay APIKeyHash: comparar con bcrypt => permitir o 401.
//  4. Si no, comparar en tiempo constante contra APIKey => permitir o 401.
func RequireAdminKey(cfg AdminConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enforce {
				next.ServeHTTP(w, r)
				return
			}

			key := adminKeyFromRequest(r)
			if key == "" {
				errors.WriteError(w, errors.ErrTokenMissing.WithDetail("admin API key required"))
				return
			}

			if cfg.APIKeyHash != "" {
				if err := bcrypt.CompareHashAndPassword([]byte(cfg.APIKeyHash), []byte(key)); err != nil {
					errors.WriteError(w, errors.ErrUnauthorized.WithDetail("invalid admin API key"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(cfg.APIKey), []byte(key)) != 1 {
				errors.WriteError(w, errors.ErrUnauthorized.WithDetail("invalid admin API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
