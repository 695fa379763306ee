package domain_test

import (
	"testing"

	"github.com/snapguard/snapguard/internal/domain"
)

func TestNode_EligibleForVerification(t *testing.T) {
	cases := []struct {
		name  string
		roles []domain.NodeRole
		want  bool
	}{
		{"data", []domain.NodeRole{domain.RoleData}, true},
		{"master", []domain.NodeRole{domain.RoleMaster}, true},
		{"data+master", []domain.NodeRole{domain.RoleData, domain.RoleMaster}, true},
		{"voting only", []domain.NodeRole{domain.RoleMaster, domain.RoleVotingOnly}, false},
		// voting_only gana siempre: aunque el rol data esté mal declarado
		// junto a él, el nodo no participa de rondas.
		{"voting only with data", []domain.NodeRole{domain.RoleData, domain.RoleVotingOnly}, false},
		{"no roles", nil, false},
	}
	for _, c := range cases {
		n := domain.Node{ID: "n1", Roles: c.roles}
		if got := n.EligibleForVerification(); got != c.want {
			t.Errorf("%s: eligible=%v, want %v", c.name, got, c.want)
		}
	}
}

func TestCleanupState_Find(t *testing.T) {
	st := domain.CleanupState{Records: []domain.CleanupRecord{
		{Repository: "backup-1", RepositoryStateID: 7},
	}}
	rec, ok := st.Find("backup-1")
	if !ok || rec.RepositoryStateID != 7 {
		t.Fatalf("find: %+v ok=%v", rec, ok)
	}
	if _, ok := st.Find("backup-2"); ok {
		t.Fatal("found a record that does not exist")
	}
	if !st.HasCleanupInProgress() {
		t.Fatal("expected in-progress state")
	}
}

func TestVerificationOutcome_Success(t *testing.T) {
	ok := domain.VerificationOutcome{Repository: "backup-1", Nodes: []string{"n1", "n2"}}
	if !ok.Success() {
		t.Fatal("outcome without failures should be favorable")
	}
	bad := domain.VerificationOutcome{
		Repository: "backup-1",
		Nodes:      []string{"n1"},
		Failures: map[string]domain.ProbeError{
			"n2": {Kind: domain.ProbeNodeUnreachable, Message: "dial tcp: timeout"},
		},
	}
	if bad.Success() {
		t.Fatal("outcome with failures should be unfavorable")
	}
}
