// Package controllers agrupa todos los controllers HTTP.
//
// Composition root de la capa HTTP: acá se instancian los controllers con
// sus dependencias de dominio ya construidas. El flujo en main es:
//
//	1. construir stores, registry y servicios de dominio
//	2. ctrls := controllers.New(controllers.Deps{...})
//	3. router.New(router.Deps{Controllers: ctrls, ...})
//	4. levantar el server con el handler resultante
package controllers

import (
	"github.com/snapguard/snapguard/internal/cache"
	"github.com/snapguard/snapguard/internal/http/controllers/admin"
	"github.com/snapguard/snapguard/internal/http/controllers/health"
	"github.com/snapguard/snapguard/internal/http/controllers/internalapi"
)

// Deps agrupa las dependencias de dominio de todos los controllers.
type Deps struct {
	Admin  admin.Deps
	Cache  cache.Client // puede ser nil; degrada el readiness
	Prober internalapi.Prober
	SelfID string
}

// Controllers agrupa todos los sub-controllers por dominio.
type Controllers struct {
	Admin    *admin.Controllers
	Health   *health.HealthController
	Internal *internalapi.VerifyController
}

// New crea el agregador de controllers. Este es el único lugar donde se
// instancian.
func New(d Deps) *Controllers {
	return &Controllers{
		Admin:    admin.NewControllers(d.Admin),
		Health:   health.NewHealthController(d.Admin.Directory, d.Cache),
		Internal: internalapi.NewVerifyController(d.Prober, d.SelfID),
	}
}
