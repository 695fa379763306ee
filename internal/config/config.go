package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapguard/snapguard/internal/security/secretbox"
)

// NodeDef describe un miembro del roster del cluster.
type NodeDef struct {
	ID       string   `yaml:"id"`
	RaftAddr string   `yaml:"raft_addr"`
	APIAddr  string   `yaml:"api_addr"` // base URL del API admin (http://host:puerto)
	Roles    []string `yaml:"roles"`    // data | master | voting_only
}

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Admin struct {
		// APIKey en claro (dev) o sellada con "enc:". Si APIKeyHash está
		// presente (bcrypt), tiene precedencia y APIKey se ignora.
		APIKey     string `yaml:"api_key"`
		APIKeyHash string `yaml:"api_key_hash"`
		Enforce    bool   `yaml:"enforce"`
	} `yaml:"admin"`

	Cluster struct {
		Mode     string `yaml:"mode"` // single | embedded
		NodeID   string `yaml:"node_id"`
		RaftAddr string `yaml:"raft_addr"`
		DataDir  string `yaml:"data_dir"` // raft.db + snapshots

		// Roster estático: todos los miembros con roles y direcciones.
		Nodes []NodeDef `yaml:"nodes"`

		ApplyTimeout string `yaml:"apply_timeout"`

		// TLS for Raft transport (optional, mTLS when enabled)
		RaftTLSEnable     bool   `yaml:"raft_tls_enable"`
		RaftTLSCertFile   string `yaml:"raft_tls_cert_file"`
		RaftTLSKeyFile    string `yaml:"raft_tls_key_file"`
		RaftTLSCAFile     string `yaml:"raft_tls_ca_file"`
		RaftTLSServerName string `yaml:"raft_tls_server_name"`
	} `yaml:"cluster"`

	Verify struct {
		ProbeTimeout string `yaml:"probe_timeout"` // por nodo, incluye el hop de red
		CacheTTL     string `yaml:"cache_ttl"`     // retención del último veredicto
	} `yaml:"verify"`

	Cleanup struct {
		StaleAge    string `yaml:"stale_age"`   // edad mínima de un blob tmp- para considerarlo huérfano
		Concurrency int    `yaml:"concurrency"` // borrados en paralelo
	} `yaml:"cleanup"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
			Password string `yaml:"password"` // puede venir sellada con "enc:"
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// InternalAuth protege las rutas /internal/* entre nodos (HS256).
	InternalAuth struct {
		Secret string `yaml:"secret"` // compartida por todos los nodos; puede venir sellada
		TTL    string `yaml:"ttl"`    // vida de cada token emitido
	} `yaml:"internal_auth"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Verify  struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"verify"`
		Cleanup struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"cleanup"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"` // puede venir sellada con "enc:"
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Notify struct {
		Enabled bool   `yaml:"enabled"`
		To      string `yaml:"to"` // destinatario de alertas de verificación/limpieza
	} `yaml:"notify"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	// Overrides por env
	c.applyEnvOverrides()

	// Secretos sellados ("enc:...") se abren después de los overrides para
	// que un valor de env también pueda venir sellado.
	if err := c.unsealSecrets(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar data_dir (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Cluster.DataDir); p != "" && !filepath.IsAbs(p) {
		base := filepath.Dir(path)
		c.Cluster.DataDir = filepath.Clean(filepath.Join(base, p))
	}

	return &c, nil
}

// LoadFromEnv arma la configuración solo desde variables de entorno,
// sin archivo YAML. Útil para contenedores y tests.
func LoadFromEnv() (*Config, error) {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.unsealSecrets(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":9400"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "15m"
	}
	if strings.TrimSpace(c.Cluster.Mode) == "" {
		c.Cluster.Mode = "single"
	}
	if c.Cluster.RaftAddr == "" {
		c.Cluster.RaftAddr = "127.0.0.1:9401"
	}
	if c.Cluster.DataDir == "" {
		c.Cluster.DataDir = "./data/snapguard"
	}
	if c.Cluster.ApplyTimeout == "" {
		c.Cluster.ApplyTimeout = "10s"
	}
	if c.Verify.ProbeTimeout == "" {
		c.Verify.ProbeTimeout = "30s"
	}
	if c.Verify.CacheTTL == "" {
		c.Verify.CacheTTL = "15m"
	}
	if c.Cleanup.StaleAge == "" {
		c.Cleanup.StaleAge = "12h"
	}
	if c.Cleanup.Concurrency == 0 {
		c.Cleanup.Concurrency = 4
	}
	if c.InternalAuth.TTL == "" {
		c.InternalAuth.TTL = "2m"
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 6
	}
	if c.Rate.Verify.Window == "" {
		c.Rate.Verify.Window = "1m"
	}
	if c.Rate.Cleanup.Limit == 0 {
		c.Rate.Cleanup.Limit = 3
	}
	if c.Rate.Cleanup.Window == "" {
		c.Rate.Cleanup.Window = "1m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// ADMIN
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Admin.APIKey = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY_HASH"); ok {
		c.Admin.APIKeyHash = v
	}
	if v, ok := getEnvBool("ADMIN_ENFORCE"); ok {
		c.Admin.Enforce = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// VERIFY
	if v, ok := getEnvStr("VERIFY_PROBE_TIMEOUT"); ok {
		c.Verify.ProbeTimeout = v
	}
	if v, ok := getEnvStr("VERIFY_CACHE_TTL"); ok {
		c.Verify.CacheTTL = v
	}

	// CLEANUP
	if v, ok := getEnvStr("CLEANUP_STALE_AGE"); ok {
		c.Cleanup.StaleAge = v
	}
	if v, ok := getEnvInt("CLEANUP_CONCURRENCY"); ok {
		c.Cleanup.Concurrency = v
	}

	// INTERNAL AUTH
	if v, ok := getEnvStr("NODE_SHARED_SECRET"); ok {
		c.InternalAuth.Secret = v
	}
	if v, ok := getEnvStr("NODE_TOKEN_TTL"); ok {
		c.InternalAuth.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_VERIFY_LIMIT"); ok {
		c.Rate.Verify.Limit = v
	}
	if v, ok := getEnvStr("RATE_VERIFY_WINDOW"); ok {
		c.Rate.Verify.Window = v
	}
	if v, ok := getEnvInt("RATE_CLEANUP_LIMIT"); ok {
		c.Rate.Cleanup.Limit = v
	}
	if v, ok := getEnvStr("RATE_CLEANUP_WINDOW"); ok {
		c.Rate.Cleanup.Window = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v) // auto|starttls|ssl|none
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// NOTIFY
	if v, ok := getEnvBool("NOTIFY_ENABLED"); ok {
		c.Notify.Enabled = v
	}
	if v, ok := getEnvStr("NOTIFY_TO"); ok {
		c.Notify.To = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// ───── Cluster ─────
	// CLUSTER_MODE=single|embedded (default single)
	if v, ok := getEnvStr("CLUSTER_MODE"); ok {
		c.Cluster.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("NODE_ID"); ok {
		c.Cluster.NodeID = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("RAFT_ADDR"); ok {
		c.Cluster.RaftAddr = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("CLUSTER_DATA_DIR"); ok {
		c.Cluster.DataDir = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("RAFT_APPLY_TIMEOUT"); ok {
		c.Cluster.ApplyTimeout = v
	}

	// CLUSTER_NODES="n1=127.0.0.1:9401;n2=127.0.0.1:9402" (direcciones raft)
	if m, ok := getEnvKVList("CLUSTER_NODES", ";"); ok {
		for id, addr := range m {
			c.upsertNode(id).RaftAddr = addr
		}
	}
	// CLUSTER_API_ADDRS="n1=http://127.0.0.1:9400;n2=http://127.0.0.1:9410"
	if m, ok := getEnvKVList("CLUSTER_API_ADDRS", ";"); ok {
		for id, addr := range m {
			c.upsertNode(id).APIAddr = addr
		}
	}
	// CLUSTER_VOTING_ONLY="n3,n4": esos nodos quedan master+voting_only
	if ids, ok := getEnvCSV("CLUSTER_VOTING_ONLY"); ok {
		for _, id := range ids {
			c.upsertNode(id).Roles = []string{"master", "voting_only"}
		}
	}

	// Raft TLS (optional)
	if v, ok := getEnvBool("RAFT_TLS_ENABLE"); ok {
		c.Cluster.RaftTLSEnable = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CERT_FILE"); ok {
		c.Cluster.RaftTLSCertFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_KEY_FILE"); ok {
		c.Cluster.RaftTLSKeyFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CA_FILE"); ok {
		c.Cluster.RaftTLSCAFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_SERVER_NAME"); ok {
		c.Cluster.RaftTLSServerName = v
	}
}

// upsertNode busca el nodo en el roster o lo crea con roles por defecto.
func (c *Config) upsertNode(id string) *NodeDef {
	for i := range c.Cluster.Nodes {
		if c.Cluster.Nodes[i].ID == id {
			return &c.Cluster.Nodes[i]
		}
	}
	c.Cluster.Nodes = append(c.Cluster.Nodes, NodeDef{
		ID:    id,
		Roles: []string{"data", "master"},
	})
	return &c.Cluster.Nodes[len(c.Cluster.Nodes)-1]
}

// Node devuelve la definición del roster para id, si existe.
func (c *Config) Node(id string) (NodeDef, bool) {
	for _, n := range c.Cluster.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDef{}, false
}

// unsealSecrets abre los valores "enc:..." con la clave maestra de secretbox.
func (c *Config) unsealSecrets() error {
	fields := []*string{
		&c.Admin.APIKey,
		&c.InternalAuth.Secret,
		&c.SMTP.Password,
		&c.Cache.Redis.Password,
	}
	for _, f := range fields {
		v, err := secretbox.Unseal(*f)
		if err != nil {
			return fmt.Errorf("config: unseal secret: %w", err)
		}
		*f = v
	}
	return nil
}

// Validate chequea los valores críticos de la configuración.
func (c *Config) Validate() error {
	switch c.Cluster.Mode {
	case "single", "embedded":
	default:
		return fmt.Errorf("config: cluster.mode inválido %q (single|embedded)", c.Cluster.Mode)
	}

	if c.Cluster.Mode == "embedded" {
		if strings.TrimSpace(c.Cluster.NodeID) == "" {
			return fmt.Errorf("config: cluster.node_id requerido en modo embedded")
		}
		if _, ok := c.Node(c.Cluster.NodeID); !ok {
			return fmt.Errorf("config: el nodo local %q no está en cluster.nodes", c.Cluster.NodeID)
		}
	}

	for _, n := range c.Cluster.Nodes {
		for _, r := range n.Roles {
			switch r {
			case "data", "master", "voting_only":
			default:
				return fmt.Errorf("config: rol inválido %q en nodo %q", r, n.ID)
			}
		}
	}

	// validate string durations
	for name, s := range map[string]string{
		"cluster.apply_timeout": c.Cluster.ApplyTimeout,
		"verify.probe_timeout":  c.Verify.ProbeTimeout,
		"verify.cache_ttl":      c.Verify.CacheTTL,
		"cleanup.stale_age":     c.Cleanup.StaleAge,
		"internal_auth.ttl":     c.InternalAuth.TTL,
		"rate.verify.window":    c.Rate.Verify.Window,
		"rate.cleanup.window":   c.Rate.Cleanup.Window,
		"cache.memory.default_ttl": c.Cache.Memory.DefaultTTL,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}

	return nil
}

// MustDuration parsea una duración ya validada por Validate.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
