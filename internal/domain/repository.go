package domain

import "time"

// RepositoryType identifica el backend de almacenamiento de un repositorio.
type RepositoryType string

const (
	RepositoryTypeFS     RepositoryType = "fs"
	RepositoryTypeS3     RepositoryType = "s3"
	RepositoryTypeMemory RepositoryType = "memory"
)

// RepositoryConfig es la definición replicada de un repositorio de backup.
// Settings depende del tipo:
//
//	fs:  root (path absoluto compartido, ej. NFS)
//	s3:  bucket, prefix, region, endpoint, path_style
//	mem: sin settings; solo para tests y demos
type RepositoryConfig struct {
	Name      string            `json:"name"`
	Type      RepositoryType    `json:"type"`
	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Setting devuelve el valor de una clave de settings, o def si no está.
func (c RepositoryConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}
