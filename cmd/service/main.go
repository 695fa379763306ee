package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/snapguard/snapguard/internal/cache"
	"github.com/snapguard/snapguard/internal/cleanup"
	"github.com/snapguard/snapguard/internal/cluster"
	"github.com/snapguard/snapguard/internal/cluster/membership"
	"github.com/snapguard/snapguard/internal/config"
	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/http/controllers"
	adminctl "github.com/snapguard/snapguard/internal/http/controllers/admin"
	mw "github.com/snapguard/snapguard/internal/http/middlewares"
	"github.com/snapguard/snapguard/internal/http/router"
	httpserver "github.com/snapguard/snapguard/internal/http/server"
	"github.com/snapguard/snapguard/internal/notify"
	"github.com/snapguard/snapguard/internal/observability/logger"
	"github.com/snapguard/snapguard/internal/rate"
	"github.com/snapguard/snapguard/internal/repositories"
	"github.com/snapguard/snapguard/internal/security/nodetoken"
	"github.com/snapguard/snapguard/internal/security/secretbox"
	"github.com/snapguard/snapguard/internal/store/memstore"
	"github.com/snapguard/snapguard/internal/store/raftstore"
	"github.com/snapguard/snapguard/internal/verify"
)

// Adapter para que rate.Limiter cumpla con mw.RateLimiter
type limiterAdapter struct{ inner rate.Limiter }

func (a limiterAdapter) Allow(ctx context.Context, key string) (mw.RateLimitResult, error) {
	res, err := a.inner.Allow(ctx, key)
	if err != nil {
		return mw.RateLimitResult{}, err
	}
	return mw.RateLimitResult{
		Allowed:     res.Allowed,
		Remaining:   res.Remaining,
		RetryAfter:  res.RetryAfter,
		WindowTTL:   res.WindowTTL,
		CurrentHits: res.CurrentHits,
	}, nil
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// rosterFromConfig traduce el roster declarado en YAML/env al modelo de dominio.
func rosterFromConfig(c *config.Config) []domain.Node {
	out := make([]domain.Node, 0, len(c.Cluster.Nodes))
	for _, def := range c.Cluster.Nodes {
		out = append(out, nodeFromDef(def))
	}
	return out
}

func nodeFromDef(def config.NodeDef) domain.Node {
	roles := make([]domain.NodeRole, 0, len(def.Roles))
	for _, r := range def.Roles {
		roles = append(roles, domain.NodeRole(r))
	}
	if len(roles) == 0 {
		roles = []domain.NodeRole{domain.RoleData, domain.RoleMaster}
	}
	return domain.Node{ID: def.ID, APIAddr: def.APIAddr, RaftAddr: def.RaftAddr, Roles: roles}
}

func printConfigSummary(c *config.Config) {
	// Mask sensitive values for logging
	mask := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "NOT_SET"
		}
		return "***masked***"
	}

	log.Printf(`CONFIG:
  server.addr=%s

  cluster(mode=%s, node_id=%s, raft_addr=%s, data_dir=%s, nodes=%d, apply_timeout=%s, raft_tls=%t)

  verify(probe_timeout=%s, cache_ttl=%s)
  cleanup(stale_age=%s, concurrency=%d)

  admin(enforce=%t, api_key=%s, api_key_hash=%s)
  internal_auth(secret=%s, ttl=%s)

  cache.kind=%s
  redis.addr=%s db=%d prefix=%s

  rate(enabled=%t, verify=%d/%s, cleanup=%d/%s)

  smtp(host=%s, port=%d, user=%s, from=%s, tls=%s, insecure=%t)
  notify(enabled=%t, to=%s)

  log.level=%s
`,
		c.Server.Addr,
		c.Cluster.Mode, c.Cluster.NodeID, c.Cluster.RaftAddr, c.Cluster.DataDir,
		len(c.Cluster.Nodes), c.Cluster.ApplyTimeout, c.Cluster.RaftTLSEnable,
		c.Verify.ProbeTimeout, c.Verify.CacheTTL,
		c.Cleanup.StaleAge, c.Cleanup.Concurrency,
		c.Admin.Enforce, mask(c.Admin.APIKey), mask(c.Admin.APIKeyHash),
		mask(c.InternalAuth.Secret), c.InternalAuth.TTL,
		c.Cache.Kind,
		c.Cache.Redis.Addr, c.Cache.Redis.DB, c.Cache.Redis.Prefix,
		c.Rate.Enabled, c.Rate.Verify.Limit, c.Rate.Verify.Window, c.Rate.Cleanup.Limit, c.Rate.Cleanup.Window,
		c.SMTP.Host, c.SMTP.Port, c.SMTP.Username, c.SMTP.From, c.SMTP.TLS, c.SMTP.InsecureSkipVerify,
		c.Notify.Enabled, c.Notify.To,
		c.Log.Level,
	)
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvOnly    = flag.Bool("env", false, "usar SOLO env (y .env si se pasa -env-file)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
	)
	flag.Parse()

	if *flagEnvFile != "" && (fileExists(*flagEnvFile) || *flagEnvOnly) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	var cfg *config.Config
	var err error
	if *flagEnvOnly {
		cfg, err = config.LoadFromEnv()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfgPath := *flagConfigPath
		if cfgPath == "" {
			cfgPath = os.Getenv("CONFIG_PATH")
		}
		if cfgPath == "" {
			if fileExists("configs/config.yaml") {
				cfgPath = "configs/config.yaml"
			} else {
				cfgPath = "configs/config.example.yaml"
			}
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	// Secretos sellados ("enc:...") ya fueron abiertos por config.Load; acá
	// sólo dejamos constancia de si hay clave maestra disponible.
	if secretbox.IsReady() {
		log.Printf("secretbox: clave maestra cargada")
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "snapguard",
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ───── Roster y stores según modo ─────
	roster := rosterFromConfig(cfg)

	var (
		catalog      domain.CatalogStore
		coordination domain.CoordinationStore
		raftNode     *cluster.Node
		self         domain.Node
	)

	switch cfg.Cluster.Mode {
	case "embedded":
		// Validate ya garantizó que el nodo local está en el roster.
		def, _ := cfg.Node(cfg.Cluster.NodeID)
		self = nodeFromDef(def)

		peers := make(map[string]string, len(cfg.Cluster.Nodes))
		for _, n := range cfg.Cluster.Nodes {
			if n.RaftAddr != "" {
				peers[n.ID] = n.RaftAddr
			}
		}

		fsm := cluster.NewFSM()
		raftNode, err = cluster.NewNode(cluster.NodeOptions{
			NodeID:            cfg.Cluster.NodeID,
			RaftAddr:          cfg.Cluster.RaftAddr,
			DataDir:           cfg.Cluster.DataDir,
			FSM:               fsm,
			Peers:             peers,
			ApplyTimeout:      config.MustDuration(cfg.Cluster.ApplyTimeout),
			RaftTLSEnable:     cfg.Cluster.RaftTLSEnable,
			RaftTLSCertFile:   cfg.Cluster.RaftTLSCertFile,
			RaftTLSKeyFile:    cfg.Cluster.RaftTLSKeyFile,
			RaftTLSCAFile:     cfg.Cluster.RaftTLSCAFile,
			RaftTLSServerName: cfg.Cluster.RaftTLSServerName,
		})
		if err != nil {
			log.Fatalf("cluster: %v", err)
		}
		defer func() { _ = raftNode.Close() }()

		st := raftstore.NewStore(raftNode, fsm)
		catalog, coordination = st, st

		// El janitor limpia registros de limpieza huérfanos al asumir liderazgo.
		jan := cleanup.NewJanitor(coordination, raftNode.LeadershipEvents())
		go jan.Run(ctx)

	default: // single
		self = domain.Node{
			ID:    strings.TrimSpace(cfg.Cluster.NodeID),
			Roles: []domain.NodeRole{domain.RoleData, domain.RoleMaster},
		}
		if self.ID == "" {
			self.ID = "single"
		}
		if def, ok := cfg.Node(self.ID); ok {
			self = nodeFromDef(def)
		}
		ms := memstore.New()
		catalog, coordination = ms, ms
	}

	directory := membership.NewDirectory(self, roster, raftNode)

	// ───── Catálogo y verificación ─────
	registry := repositories.NewRegistry(catalog)
	responder := verify.NewResponder(registry, self.ID)

	var minter *nodetoken.Minter
	var nodeVerifier *nodetoken.Verifier
	if s := strings.TrimSpace(cfg.InternalAuth.Secret); s != "" {
		minter, err = nodetoken.NewMinter(s, self.ID, config.MustDuration(cfg.InternalAuth.TTL))
		if err != nil {
			log.Fatalf("node token minter: %v", err)
		}
		nodeVerifier, err = nodetoken.NewVerifier(s)
		if err != nil {
			log.Fatalf("node token verifier: %v", err)
		}
	} else if cfg.Cluster.Mode == "embedded" {
		log.Printf("WARN: NODE_SHARED_SECRET vacío: /internal/* rechazará todos los sondeos remotos")
	}

	// Con minter nil el prober manda los sondeos sin Authorization (sólo dev).
	var proberMinter verify.TokenMinter
	if minter != nil {
		proberMinter = minter
	}
	prober := verify.NewHTTPProber(proberMinter, config.MustDuration(cfg.Verify.ProbeTimeout))

	outcomes, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.MustDuration(cfg.Cache.Memory.DefaultTTL),
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer func() { _ = outcomes.Close() }()

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		sender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		sender.TLSMode = cfg.SMTP.TLS
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		notifier = notify.New(sender, cfg.Notify.To)
		if !notifier.Enabled() {
			log.Printf("WARN: notify.enabled=true pero falta SMTP o destinatario; alertas apagadas")
		}
	}

	coordinator, err := verify.NewCoordinator(verify.CoordinatorOptions{
		Directory:    directory,
		Responder:    responder,
		Prober:       prober,
		ProbeTimeout: config.MustDuration(cfg.Verify.ProbeTimeout),
		Outcomes:     outcomes,
		OutcomeTTL:   config.MustDuration(cfg.Verify.CacheTTL),
		Notifier:     notifier,
	})
	if err != nil {
		log.Fatalf("verify coordinator: %v", err)
	}

	service := repositories.NewService(catalog, registry, coordinator)

	guard := cleanup.NewGuard(coordination)
	runner, err := cleanup.NewRunner(cleanup.RunnerOptions{
		Resolver:    registry,
		Guard:       guard,
		StaleAge:    config.MustDuration(cfg.Cleanup.StaleAge),
		Concurrency: cfg.Cleanup.Concurrency,
		Notifier:    notifier,
	})
	if err != nil {
		log.Fatalf("cleanup runner: %v", err)
	}

	// ───── Rate limiting por clase de operación ─────
	var verifyLimiter, cleanupLimiter mw.RateLimiter
	if cfg.Rate.Enabled {
		verifyWin := config.MustDuration(cfg.Rate.Verify.Window)
		cleanupWin := config.MustDuration(cfg.Rate.Cleanup.Window)
		if strings.EqualFold(cfg.Cache.Kind, "redis") {
			rc := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			verifyLimiter = limiterAdapter{inner: rate.NewRedisLimiter(rc, cfg.Cache.Redis.Prefix+"rl:verify:", cfg.Rate.Verify.Limit, verifyWin)}
			cleanupLimiter = limiterAdapter{inner: rate.NewRedisLimiter(rc, cfg.Cache.Redis.Prefix+"rl:cleanup:", cfg.Rate.Cleanup.Limit, cleanupWin)}
		} else {
			verifyLimiter = limiterAdapter{inner: rate.NewMemoryLimiter(cfg.Rate.Verify.Limit, verifyWin)}
			cleanupLimiter = limiterAdapter{inner: rate.NewMemoryLimiter(cfg.Rate.Cleanup.Limit, cleanupWin)}
		}
	}

	metricsHandler, err := mw.RegisterMetrics(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	// En modo single no hay líder que consultar: las interfaces quedan nil y
	// el middleware de liderazgo deja pasar todo.
	var leaderInfo mw.LeaderInfo
	var clusterInfo adminctl.ClusterInfo
	if raftNode != nil {
		leaderInfo = raftNode
		clusterInfo = raftNode
	}

	ctrls := controllers.New(controllers.Deps{
		Admin: adminctl.Deps{
			Service:      service,
			Outcomes:     coordinator,
			Runner:       runner,
			Coordination: coordination,
			Directory:    directory,
			Cluster:      clusterInfo,
			Mode:         cfg.Cluster.Mode,
		},
		Cache:  outcomes,
		Prober: responder,
		SelfID: self.ID,
	})

	leaderURLs := make(map[string]string, len(roster))
	for _, n := range roster {
		if n.APIAddr != "" {
			leaderURLs[n.ID] = n.APIAddr
		}
	}

	handler := router.New(router.Deps{
		Controllers: ctrls,
		AdminGuard: mw.AdminConfig{
			APIKey:     cfg.Admin.APIKey,
			APIKeyHash: cfg.Admin.APIKeyHash,
			Enforce:    cfg.Admin.Enforce,
		},
		NodeVerifier:   nodeVerifier,
		Leader:         leaderInfo,
		LeaderURLs:     leaderURLs,
		VerifyLimiter:  verifyLimiter,
		CleanupLimiter: cleanupLimiter,
		MetricsHandler: metricsHandler,
		DebugRequests:  strings.EqualFold(cfg.Log.Level, "debug"),
	})

	mode := "yaml"
	if *flagEnvOnly {
		mode = "env"
	}
	log.Printf("snapguard up. mode=%s cluster=%s node=%s addr=%s time=%s",
		mode, cfg.Cluster.Mode, self.ID, cfg.Server.Addr, time.Now().Format(time.RFC3339))

	srv := httpserver.New(cfg.Server.Addr, handler)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("http: %v", err)
	}
}
