// Package membership resuelve la vista de miembros del cluster: la
// configuración Raft viva cruzada con el roster declarado en config, que es
// quien aporta roles y direcciones de API. Nodos presentes en Raft pero
// ausentes del roster reciben roles por defecto (data, master).
package membership

import (
	"context"
	"sort"

	"github.com/snapguard/snapguard/internal/cluster"
	"github.com/snapguard/snapguard/internal/domain"
)

// defaultRoles aplica a miembros que Raft conoce pero el roster no.
var defaultRoles = []domain.NodeRole{domain.RoleData, domain.RoleMaster}

type Directory struct {
	self   domain.Node
	roster map[string]domain.Node
	node   *cluster.Node // nil en modo single
}

// NewDirectory arma el directorio. En modo single pase node==nil y un roster
// con el único nodo local.
func NewDirectory(self domain.Node, roster []domain.Node, node *cluster.Node) *Directory {
	m := make(map[string]domain.Node, len(roster))
	for _, n := range roster {
		m[n.ID] = n
	}
	return &Directory{self: self, roster: m, node: node}
}

func (d *Directory) Self() domain.Node { return d.self }

// Current devuelve los miembros actuales ordenados por ID. Con Raft
// embebido la fuente de verdad es la configuración del cluster, no el
// roster estático: un nodo removido dinámicamente deja de aparecer.
func (d *Directory) Current(ctx context.Context) ([]domain.Node, error) {
	if d.node == nil {
		out := make([]domain.Node, 0, len(d.roster))
		for _, n := range d.roster {
			out = append(out, n)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out, nil
	}

	cfg, err := d.node.GetConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Node, 0, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		id := string(srv.ID)
		if n, ok := d.roster[id]; ok {
			out = append(out, n)
			continue
		}
		out = append(out, domain.Node{
			ID:       id,
			RaftAddr: string(srv.Address),
			Roles:    defaultRoles,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Leader resuelve el líder actual contra el roster. La librería puede
// reportar el líder por ID o por dirección según el estado del cluster,
// así que se intenta por ambos.
func (d *Directory) Leader(ctx context.Context) (domain.Node, error) {
	if d.node == nil {
		return d.self, nil
	}

	leaderID := d.node.LeaderID()
	if leaderID == "" {
		return domain.Node{}, domain.ErrClusterUnavailable
	}
	if n, ok := d.roster[leaderID]; ok {
		return n, nil
	}
	leaderAddr := d.node.LeaderAddr()
	for _, n := range d.roster {
		if n.RaftAddr == leaderID || (leaderAddr != "" && n.RaftAddr == leaderAddr) {
			return n, nil
		}
	}
	return domain.Node{ID: leaderID, RaftAddr: leaderAddr, Roles: defaultRoles}, nil
}

var _ domain.MembershipDirectory = (*Directory)(nil)
