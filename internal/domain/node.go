package domain

// NodeRole indica el rol de un miembro del cluster.
type NodeRole string

const (
	// RoleData marca nodos que sirven datos y por lo tanto acceden a los
	// repositorios de backup.
	RoleData NodeRole = "data"

	// RoleMaster marca nodos elegibles para coordinar el cluster.
	RoleMaster NodeRole = "master"

	// RoleVotingOnly marca nodos que solo votan en el quórum: nunca alojan
	// datos, así que sondearlos contra un repositorio daría falsos negativos.
	RoleVotingOnly NodeRole = "voting_only"
)

// Node representa un miembro del cluster visto por la capa de coordinación.
type Node struct {
	ID       string     `json:"id"`
	APIAddr  string     `json:"api_addr"`
	RaftAddr string     `json:"raft_addr,omitempty"`
	Roles    []NodeRole `json:"roles"`
}

// HasRole indica si el nodo tiene el rol dado.
func (n Node) HasRole(role NodeRole) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EligibleForVerification indica si el nodo participa en rondas de
// verificación: data o master, excluyendo siempre voting-only.
func (n Node) EligibleForVerification() bool {
	if n.HasRole(RoleVotingOnly) {
		return false
	}
	return n.HasRole(RoleData) || n.HasRole(RoleMaster)
}
