// Package domain define las entidades y contratos centrales del sistema:
// el catálogo de repositorios de backup, los registros de limpieza en curso,
// los miembros del cluster y los veredictos de verificación.
//
// Las implementaciones concretas de los stores viven en internal/store/
// (raftstore para modo cluster, memstore para modo single y tests).
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
//   - Las entidades son valores inmutables una vez creadas
package domain
