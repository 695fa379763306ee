// Package backend materializa la conexión de este nodo con un repositorio
// compartido de backups. Todas las implementaciones exponen la misma
// superficie chica: sondeo de acceso, marcador de generación y el mínimo de
// operaciones de blobs que necesita la limpieza.
package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
)

const (
	// generationKey es el blob marcador de generación del repositorio:
	// 8 bytes big-endian con el repositoryStateId vigente.
	generationKey = "index.latest"

	// probePrefix agrupa los blobs efímeros de verificación.
	probePrefix = "probes/"

	// TempPrefix agrupa blobs temporales de escrituras en curso; la limpieza
	// borra los que quedaron huérfanos.
	TempPrefix = "tmp/"
)

// BlobInfo describe un blob listado. Key es relativa a la raíz del
// repositorio, con "/" como separador.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Backend es la conexión viva con un repositorio. Cada nodo materializa la
// suya a partir de la definición replicada; el almacenamiento es compartido.
type Backend interface {
	// Verify escribe un blob de sondeo identificado por token y nodo,
	// lo relee, compara y lo borra. Un repositorio que no puede completar
	// el ciclo no es confiable para backups.
	Verify(ctx context.Context, token, nodeID string) error

	// Generation lee el marcador de generación. Repositorio virgen
	// (sin marcador) es generación 0.
	Generation(ctx context.Context) (int64, error)

	// SetGeneration escribe el marcador.
	SetGeneration(ctx context.Context, gen int64) error

	// List enumera blobs cuya clave empieza con prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)

	// Delete borra blobs por clave; claves inexistentes no son error.
	Delete(ctx context.Context, keys ...string) error
}

// New materializa el backend que corresponde a la definición.
func New(ctx context.Context, cfg domain.RepositoryConfig) (Backend, error) {
	switch cfg.Type {
	case domain.RepositoryTypeFS:
		return newFS(cfg)
	case domain.RepositoryTypeS3:
		return newS3(ctx, cfg)
	case domain.RepositoryTypeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("repository %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

func probeKey(token, nodeID string) string {
	return probePrefix + token + "-" + nodeID + ".dat"
}

func encodeGeneration(gen int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(gen))
	return buf
}

func decodeGeneration(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("generation marker: expected 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}
