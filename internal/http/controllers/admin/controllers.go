package admin

import "github.com/snapguard/snapguard/internal/domain"

// Deps agrupa las dependencias de dominio de los controllers admin.
type Deps struct {
	Service      RepositoryService
	Outcomes     OutcomeReader
	Runner       CleanupRunner
	Coordination domain.CoordinationStore
	Directory    domain.MembershipDirectory
	Cluster      ClusterInfo // nil en modo single
	Mode         string
}

// Controllers agrupa los controllers del dominio admin.
type Controllers struct {
	Repositories *RepositoriesController
	Cluster      *ClusterController
}

// NewControllers crea el aggregator del dominio admin.
func NewControllers(d Deps) *Controllers {
	return &Controllers{
		Repositories: NewRepositoriesController(d.Service, d.Outcomes, d.Runner),
		Cluster:      NewClusterController(d.Coordination, d.Directory, d.Cluster, d.Mode),
	}
}
