// Package cache provee un cache con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para nodos sueltos y testing)
//   - Redis (compartido, para que los veredictos sobrevivan a un failover)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Con ttl 0 aplica el DefaultTTL del
	// cliente; sin DefaultTTL configurado, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Kind       string // "memory" | "redis"
	Addr       string // redis: host:puerto
	Password   string
	DB         int
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // TTL aplicado cuando Set recibe 0
}

// ErrNotFound indica que la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return newRedis(cfg)
	case "memory", "":
		return newMemory(cfg), nil
	default:
		return nil, fmt.Errorf("cache: kind %q no soportado", cfg.Kind)
	}
}
