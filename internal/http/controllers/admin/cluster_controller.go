package admin

import (
	"encoding/json"
	"net/http"

	"github.com/snapguard/snapguard/internal/domain"
	dto "github.com/snapguard/snapguard/internal/http/dto/admin"
	httperrors "github.com/snapguard/snapguard/internal/http/errors"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

// ClusterInfo expone el estado de consenso del nodo local. En modo embedded
// lo implementa cluster.Node; en modo single se pasa nil y el status se
// sintetiza desde el directorio.
type ClusterInfo interface {
	NodeID() string
	IsLeader() bool
	LeaderID() string
	LeaderAddr() string
	KnownPeers() int
	Stats() map[string]string
}

// ClusterController maneja las rutas /v1/admin/cluster.
type ClusterController struct {
	coordination domain.CoordinationStore
	directory    domain.MembershipDirectory
	info         ClusterInfo // nil en modo single
	mode         string      // single | embedded
}

// NewClusterController crea un nuevo controller de cluster.
func NewClusterController(coordination domain.CoordinationStore, directory domain.MembershipDirectory, info ClusterInfo, mode string) *ClusterController {
	return &ClusterController{coordination: coordination, directory: directory, info: info, mode: mode}
}

// Cleanups maneja GET /v1/admin/cluster/cleanups
//
// La vista expone solo el nombre de cada repositorio con limpieza viva.
func (c *ClusterController) Cleanups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("ClusterController.Cleanups"),
	)

	state, err := c.coordination.Cleanups(ctx)
	if err != nil {
		log.Error("cleanups read failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	resp := dto.ClusterCleanupsResponse{
		RepositoryCleanup: make([]dto.CleanupTaskView, 0, len(state.Records)),
	}
	for _, rec := range state.Records {
		resp.RepositoryCleanup = append(resp.RepositoryCleanup, dto.CleanupTaskView{Repository: rec.Repository})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ResetCleanups maneja POST /v1/admin/cluster/cleanups/reset
//
// Vacía todos los registros de limpieza. Es la válvula manual para cuando
// un runner murió sin retirar su registro y el repositorio quedó bloqueado.
func (c *ClusterController) ResetCleanups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("ClusterController.ResetCleanups"),
	)

	var req dto.ResetCleanupsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			httperrors.WriteError(w, httperrors.ErrInvalidJSON)
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	if err := c.coordination.ResetCleanups(ctx, reason); err != nil {
		log.Error("reset failed", logger.Err(err), logger.Reason(reason))
		httperrors.WriteError(w, mapError(err))
		return
	}

	log.Info("cleanup records cleared", logger.Reason(reason))
	writeJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// Status maneja GET /v1/admin/cluster/status
func (c *ClusterController) Status(w http.ResponseWriter, r *http.Request) {
	self := c.directory.Self()

	resp := dto.ClusterStatusResponse{
		NodeID: self.ID,
		Mode:   c.mode,
	}
	if c.info != nil {
		resp.IsLeader = c.info.IsLeader()
		resp.LeaderID = c.info.LeaderID()
		resp.LeaderAddr = c.info.LeaderAddr()
		resp.Peers = c.info.KnownPeers()
		resp.Raft = c.info.Stats()
	} else {
		// Modo single: este nodo es trivialmente el líder.
		resp.IsLeader = true
		resp.LeaderID = self.ID
		resp.Peers = 1
	}

	writeJSON(w, http.StatusOK, resp)
}

// Nodes maneja GET /v1/admin/cluster/nodes
func (c *ClusterController) Nodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("ClusterController.Nodes"),
	)

	nodes, err := c.directory.Current(ctx)
	if err != nil {
		log.Error("membership read failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	resp := dto.ClusterNodesResponse{
		Nodes:      make([]dto.NodeView, 0, len(nodes)),
		TotalCount: len(nodes),
	}
	for _, n := range nodes {
		roles := make([]string, 0, len(n.Roles))
		for _, role := range n.Roles {
			roles = append(roles, string(role))
		}
		resp.Nodes = append(resp.Nodes, dto.NodeView{
			ID:       n.ID,
			APIAddr:  n.APIAddr,
			RaftAddr: n.RaftAddr,
			Roles:    roles,
			Eligible: n.EligibleForVerification(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
