// Package raftstore implementa los stores de dominio sobre cluster.Node
// (HashiCorp Raft). Las escrituras se proponen al log replicado y el
// veredicto de admisión vuelve desde la FSM; las lecturas salen del estado
// aplicado local de este nodo.
package raftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/raft"

	"github.com/snapguard/snapguard/internal/cluster"
	"github.com/snapguard/snapguard/internal/domain"
)

// Store wrappea un cluster.Node existente junto con su FSM.
type Store struct {
	node *cluster.Node
	fsm  *cluster.FSM
}

// NewStore crea un Store sobre un nodo Raft ya inicializado. La FSM debe ser
// la misma instancia pasada a cluster.NewNode.
func NewStore(node *cluster.Node, fsm *cluster.FSM) *Store {
	return &Store{node: node, fsm: fsm}
}

// propose serializa la mutación y la envía al log. El chequeo de liderazgo
// previo evita pagar el timeout de Apply en followers; la verdad final la
// tiene igual el propio Raft.
func (s *Store) propose(ctx context.Context, typ cluster.MutationType, payload any) error {
	if s == nil || s.node == nil {
		return domain.ErrClusterUnavailable
	}
	if !s.node.IsLeader() {
		return domain.ErrNotLeader
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	m := cluster.Mutation{Type: typ, TsUnix: time.Now().Unix(), Payload: raw}
	if _, err := s.node.Apply(ctx, m); err != nil {
		return mapApplyErr(err)
	}
	return nil
}

// mapApplyErr traduce errores de Apply a la taxonomía de dominio.
// Los veredictos de la FSM ya son sentinelas de dominio y pasan intactos.
func mapApplyErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrOperationInProgress),
		errors.Is(err, domain.ErrRepositoryNotFound),
		errors.Is(err, domain.ErrStaleGeneration):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, raft.ErrNotLeader),
		errors.Is(err, raft.ErrLeadershipLost),
		errors.Is(err, raft.ErrLeadershipTransferInProgress):
		return fmt.Errorf("%w: %v", domain.ErrNotLeader, err)
	case errors.Is(err, raft.ErrRaftShutdown):
		return fmt.Errorf("%w: %v", domain.ErrClusterUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrReplicationRejected, err)
	}
}
