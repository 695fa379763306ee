package middlewares

import "context"

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
	// ctxCallerNodeKey guarda el id del nodo autenticado en rutas /internal
	ctxCallerNodeKey ctxKey = "caller_node"
)

// =================================================================================
// CONTEXT SETTERS (Internos, usados por middlewares)
// =================================================================================

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// setCallerNode inyecta el id del nodo llamante (interno)
func setCallerNode(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, ctxCallerNodeKey, nodeID)
}

// =================================================================================
// CONTEXT GETTERS (Públicos, usados por controllers/services)
// =================================================================================

// GetRequestID obtiene el request ID del contexto, o "" si no hay.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetCallerNode obtiene el id del nodo autenticado en la ruta interna, o ""
// si el middleware de autenticación interna no se aplicó.
func GetCallerNode(ctx context.Context) string {
	if v := ctx.Value(ctxCallerNodeKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
