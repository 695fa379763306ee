package cleanup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snapguard/snapguard/internal/cleanup"
	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/repositories/backend"
	"github.com/snapguard/snapguard/internal/store/memstore"
)

// ─── Stubs ───

type stubResolver struct {
	be  backend.Backend
	err error
}

func (r *stubResolver) Backend(context.Context, string) (backend.Backend, error) {
	return r.be, r.err
}

type stubNotifier struct {
	repos []string
	errs  []error
}

func (n *stubNotifier) CleanupFailed(repository string, err error) {
	n.repos = append(n.repos, repository)
	n.errs = append(n.errs, err)
}

// failDelete envuelve un backend y rechaza todos los borrados.
type failDelete struct {
	backend.Backend
}

func (failDelete) Delete(context.Context, ...string) error {
	return errors.New("backend de sólo lectura")
}

// failEndStore envuelve el store y rechaza el retiro del registro.
type failEndStore struct {
	domain.CoordinationStore
}

func (failEndStore) EndCleanup(context.Context, string) error {
	return errors.New("commit perdido")
}

func newRunner(t *testing.T, be backend.Backend, store domain.CoordinationStore, notifier cleanup.FailureNotifier) (*cleanup.Runner, *cleanup.Guard) {
	t.Helper()
	g := cleanup.NewGuard(store)
	r, err := cleanup.NewRunner(cleanup.RunnerOptions{
		Resolver:    &stubResolver{be: be},
		Guard:       g,
		StaleAge:    time.Hour,
		Concurrency: 2,
		Notifier:    notifier,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, g
}

// seedBackend deja el backend en generación 7 con un temporal viejo, un
// temporal fresco y un blob de datos viejo que jamás debe tocarse.
func seedBackend(t *testing.T) *backend.Memory {
	t.Helper()
	mem := backend.NewMemory()
	if err := mem.SetGeneration(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-24 * time.Hour)
	mem.PutBlob("tmp/upload-1.part", make([]byte, 100), old)
	mem.PutBlob("tmp/upload-2.part", make([]byte, 50), time.Now())
	mem.PutBlob("data/seg-0001.blob", make([]byte, 400), old)
	return mem
}

// ─── Tests ───

func TestRunner_SweepsStaleTemporariesAndAdvancesGeneration(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	r, g := newRunner(t, mem, memstore.New(), nil)

	rep, err := r.Run(ctx, "backup-1", -1) // -1: sin chequeo de generación
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.DeletedBlobs != 1 || rep.FreedBytes != 100 {
		t.Errorf("rep = %+v, esperaba 1 blob / 100 bytes", rep)
	}
	if rep.OldGeneration != 7 || rep.NewGeneration != 8 {
		t.Errorf("generaciones %d -> %d, esperaba 7 -> 8", rep.OldGeneration, rep.NewGeneration)
	}

	gen, err := mem.Generation(ctx)
	if err != nil || gen != 8 {
		t.Errorf("Generation = %d (err=%v), esperaba 8", gen, err)
	}
	// Sobreviven el temporal fresco y el blob de datos.
	if mem.Len() != 2 {
		t.Errorf("quedan %d blobs, esperaba 2", mem.Len())
	}
	tmp, err := mem.List(ctx, backend.TempPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(tmp) != 1 || tmp[0].Key != "tmp/upload-2.part" {
		t.Errorf("temporales restantes: %v", tmp)
	}

	// El registro quedó retirado: el repositorio admite de nuevo.
	st, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.HasCleanupInProgress() {
		t.Errorf("registro vivo tras completar: %v", st.Records)
	}
}

func TestRunner_EmptySweepStillAdvancesGeneration(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	if err := mem.SetGeneration(ctx, 7); err != nil {
		t.Fatal(err)
	}
	mem.PutBlob("tmp/upload-1.part", make([]byte, 10), time.Now())
	r, _ := newRunner(t, mem, memstore.New(), nil)

	rep, err := r.Run(ctx, "backup-1", 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.DeletedBlobs != 0 {
		t.Errorf("DeletedBlobs = %d", rep.DeletedBlobs)
	}
	if rep.NewGeneration != 8 {
		t.Errorf("NewGeneration = %d, esperaba 8", rep.NewGeneration)
	}
}

func TestRunner_StaleGenerationAbortsBeforeAdmission(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	r, g := newRunner(t, mem, memstore.New(), nil)

	_, err := r.Run(ctx, "backup-1", 5)
	if !errors.Is(err, domain.ErrStaleGeneration) {
		t.Fatalf("err = %v, esperaba ErrStaleGeneration", err)
	}

	// Abortó antes de tocar el estado replicado y antes de barrer nada.
	st, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.HasCleanupInProgress() {
		t.Errorf("una generación vencida no debe publicar registro: %v", st.Records)
	}
	if gen, _ := mem.Generation(ctx); gen != 7 {
		t.Errorf("Generation = %d, esperaba 7 intacta", gen)
	}
	if mem.Len() != 3 {
		t.Errorf("quedan %d blobs, esperaba los 3 originales", mem.Len())
	}
}

func TestRunner_BlockedWhileAnotherCleanupLive(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	r, g := newRunner(t, mem, memstore.New(), nil)

	// Otro coordinador ya publicó su registro.
	if err := g.TryBegin(ctx, "backup-1", 7); err != nil {
		t.Fatal(err)
	}

	_, err := r.Run(ctx, "backup-1", 7)
	if !domain.IsOperationInProgress(err) {
		t.Fatalf("err = %v, esperaba ErrOperationInProgress", err)
	}

	// El registro ajeno sigue vivo: el rechazo no retira nada.
	st, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Find("backup-1"); !ok {
		t.Error("el rechazo retiró un registro que no era suyo")
	}
	if gen, _ := mem.Generation(ctx); gen != 7 {
		t.Errorf("Generation = %d, esperaba 7 intacta", gen)
	}
}

// TestRunner_StaleRetryFlow recorre el ciclo completo de contención: rechazo
// por operación viva, reintento tras el retiro, y rechazo por generación
// vencida que se resuelve refrescando.
func TestRunner_StaleRetryFlow(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	r, g := newRunner(t, mem, memstore.New(), nil)

	if err := g.TryBegin(ctx, "backup-1", 7); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(ctx, "backup-1", 7); !domain.IsOperationInProgress(err) {
		t.Fatalf("con registro vivo: err = %v", err)
	}
	if err := g.End(ctx, "backup-1"); err != nil {
		t.Fatal(err)
	}

	rep, err := r.Run(ctx, "backup-1", 7)
	if err != nil {
		t.Fatalf("reintento tras retiro: %v", err)
	}
	if rep.NewGeneration != 8 {
		t.Fatalf("NewGeneration = %d, esperaba 8", rep.NewGeneration)
	}

	// La generación avanzó: el valor esperado viejo ya no sirve.
	if _, err := r.Run(ctx, "backup-1", 7); !errors.Is(err, domain.ErrStaleGeneration) {
		t.Fatalf("con generación vencida: err = %v", err)
	}
	rep, err = r.Run(ctx, "backup-1", 8)
	if err != nil {
		t.Fatalf("reintento con generación fresca: %v", err)
	}
	if rep.NewGeneration != 9 {
		t.Errorf("NewGeneration = %d, esperaba 9", rep.NewGeneration)
	}
}

func TestRunner_SweepFailureStillRetiresRecord(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	notifier := &stubNotifier{}
	r, g := newRunner(t, failDelete{mem}, memstore.New(), notifier)

	_, err := r.Run(ctx, "backup-1", 7)
	if err == nil {
		t.Fatal("esperaba el error del barrido")
	}
	if errors.Is(err, domain.ErrStaleGeneration) || domain.IsOperationInProgress(err) {
		t.Fatalf("clasificación inesperada: %v", err)
	}

	// Falló el trabajo, no la coordinación: el registro se retira igual y la
	// generación no avanza.
	st, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.HasCleanupInProgress() {
		t.Errorf("registro vivo tras fallo de barrido: %v", st.Records)
	}
	if gen, _ := mem.Generation(ctx); gen != 7 {
		t.Errorf("Generation = %d, esperaba 7", gen)
	}
	if len(notifier.repos) != 1 || notifier.repos[0] != "backup-1" {
		t.Errorf("notificaciones: %v", notifier.repos)
	}
}

func TestRunner_EndFailureKeepsRecordBlocking(t *testing.T) {
	ctx := context.Background()
	mem := seedBackend(t)
	store := memstore.New()
	notifier := &stubNotifier{}
	r, _ := newRunner(t, mem, failEndStore{store}, notifier)

	_, err := r.Run(ctx, "backup-1", 7)
	if err == nil {
		t.Fatal("esperaba error por registro sin retirar")
	}

	// El registro sigue vivo en el store real y sigue bloqueando.
	st, err := store.Cleanups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Find("backup-1"); !ok {
		t.Error("el registro debería seguir vivo")
	}
	if len(notifier.repos) != 1 {
		t.Errorf("notificaciones: %v", notifier.repos)
	}
}

func TestRunner_ResolverErrorShortCircuits(t *testing.T) {
	g := cleanup.NewGuard(memstore.New())
	r, err := cleanup.NewRunner(cleanup.RunnerOptions{
		Resolver: &stubResolver{err: domain.ErrRepositoryNotFound},
		Guard:    g,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Run(context.Background(), "ghost", -1)
	if !domain.IsRepositoryNotFound(err) {
		t.Fatalf("err = %v, esperaba ErrRepositoryNotFound", err)
	}
	st, err := g.Active(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.HasCleanupInProgress() {
		t.Errorf("registro vivo para un repositorio inexistente: %v", st.Records)
	}
}
