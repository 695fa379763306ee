package admin

// CleanupTaskView es la vista pública de una limpieza en curso. Expone
// únicamente el nombre del repositorio; la generación esperada es un
// detalle interno del registro replicado.
type CleanupTaskView struct {
	Repository string `json:"repository"`
}

// ClusterCleanupsResponse para GET /v1/admin/cluster/cleanups
type ClusterCleanupsResponse struct {
	RepositoryCleanup []CleanupTaskView `json:"repository_cleanup"`
}

// ResetCleanupsRequest para POST /v1/admin/cluster/cleanups/reset
type ResetCleanupsRequest struct {
	Reason string `json:"reason,omitempty"`
}

// NodeView representa un miembro del cluster en respuestas de la API.
type NodeView struct {
	ID       string   `json:"id"`
	APIAddr  string   `json:"api_addr,omitempty"`
	RaftAddr string   `json:"raft_addr,omitempty"`
	Roles    []string `json:"roles"`
	Eligible bool     `json:"eligible"`
}

// ClusterNodesResponse para GET /v1/admin/cluster/nodes
type ClusterNodesResponse struct {
	Nodes      []NodeView `json:"nodes"`
	TotalCount int        `json:"total_count"`
}

// ClusterStatusResponse para GET /v1/admin/cluster/status
type ClusterStatusResponse struct {
	NodeID     string            `json:"node_id"`
	Mode       string            `json:"mode"`
	IsLeader   bool              `json:"is_leader"`
	LeaderID   string            `json:"leader_id,omitempty"`
	LeaderAddr string            `json:"leader_addr,omitempty"`
	Peers      int               `json:"peers"`
	Raft       map[string]string `json:"raft,omitempty"`
}
