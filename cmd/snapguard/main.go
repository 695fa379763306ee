package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// parseSettings convierte pares k=v en el mapa de settings del repositorio.
func parseSettings(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("setting inválido %q (esperado clave=valor)", p)
		}
		out[strings.TrimSpace(kv[0])] = kv[1]
	}
	return out, nil
}

func main() {
	var (
		baseURL = envOr("SNAPGUARD_ADMIN_URL", "http://localhost:9400")
		apiKey  = envOr("SNAPGUARD_ADMIN_KEY", "")
		out     = envOr("SNAPGUARD_OUT", "text")
		timeout = 60 * time.Second
	)

	root := &cobra.Command{
		Use:   "snapguard",
		Short: "CLI admin para snapguard (solo /v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return fmt.Errorf("falta API key (flag --admin-api-key o env SNAPGUARD_ADMIN_KEY)")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "admin-api-url", baseURL, "URL base del Admin API (env SNAPGUARD_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key del Admin API (env SNAPGUARD_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	httpClient := &http.Client{Timeout: timeout}
	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: httpClient}

	// grupo admin
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Operaciones administrativas (vía /v1/admin)",
	}

	// ping: usa GET /v1/admin/repositories
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping al Admin API (requiere X-Admin-API-Key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/repositories", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ping fallo: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, []byte(`{"ok":true}`))
			return nil
		},
	}

	// ───── repo ─────
	repoCmd := &cobra.Command{Use: "repo", Short: "Operaciones sobre repositorios de backup"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar repositorios registrados",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/repositories", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("list fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	var getName string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Mostrar un repositorio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if getName == "" {
				return fmt.Errorf("--name es requerido")
			}
			status, body, err := cl.do("GET", "/v1/admin/repositories/"+getName, nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("get fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	getCmd.Flags().StringVar(&getName, "name", "", "Nombre del repositorio")

	var putName, putType string
	var putSettings []string
	var putSkipVerify bool
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Registrar o actualizar un repositorio (verifica salvo --skip-verify)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if putName == "" {
				return fmt.Errorf("--name es requerido")
			}
			if putType == "" {
				return fmt.Errorf("--type es requerido (fs|s3|memory)")
			}
			settings, err := parseSettings(putSettings)
			if err != nil {
				return err
			}
			payload := map[string]any{
				"type":     putType,
				"settings": settings,
			}
			if putSkipVerify {
				payload["skip_verify"] = true
			}
			b, _ := json.Marshal(payload)
			status, body, err := cl.do("PUT", "/v1/admin/repositories/"+putName, b, nil)
			if err != nil {
				return err
			}
			// 422: quedó registrado pero la verificación fue desfavorable.
			if status == http.StatusUnprocessableEntity {
				cl.print(status, body)
				return fmt.Errorf("registrado con verificación desfavorable")
			}
			if status/100 != 2 {
				return fmt.Errorf("put fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	putCmd.Flags().StringVar(&putName, "name", "", "Nombre del repositorio")
	putCmd.Flags().StringVar(&putType, "type", "", "Tipo de backend: fs|s3|memory")
	putCmd.Flags().StringArrayVar(&putSettings, "setting", nil, "Setting clave=valor (repetible)")
	putCmd.Flags().BoolVar(&putSkipVerify, "skip-verify", false, "Registrar sin ronda de verificación")

	var delName string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Eliminar un repositorio del catálogo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if delName == "" {
				return fmt.Errorf("--name es requerido")
			}
			status, body, err := cl.do("DELETE", "/v1/admin/repositories/"+delName, nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("delete fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	deleteCmd.Flags().StringVar(&delName, "name", "", "Nombre del repositorio")

	var verifyName string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Lanzar una ronda de verificación contra todos los nodos elegibles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifyName == "" {
				return fmt.Errorf("--name es requerido")
			}
			status, body, err := cl.do("POST", "/v1/admin/repositories/"+verifyName+"/verify", nil, nil)
			if err != nil {
				return err
			}
			// 422 trae el veredicto desfavorable con el detalle por nodo.
			if status == http.StatusUnprocessableEntity {
				cl.print(status, body)
				return fmt.Errorf("verificación desfavorable")
			}
			if status/100 != 2 {
				return fmt.Errorf("verify fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&verifyName, "name", "", "Nombre del repositorio")

	var lastName string
	verificationCmd := &cobra.Command{
		Use:   "verification",
		Short: "Mostrar el último veredicto de verificación cacheado",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lastName == "" {
				return fmt.Errorf("--name es requerido")
			}
			status, body, err := cl.do("GET", "/v1/admin/repositories/"+lastName+"/verification", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("verification fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	verificationCmd.Flags().StringVar(&lastName, "name", "", "Nombre del repositorio")

	var genName string
	generationCmd := &cobra.Command{
		Use:   "generation",
		Short: "Mostrar la generación actual del repositorio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if genName == "" {
				return fmt.Errorf("--name es requerido")
			}
			status, body, err := cl.do("GET", "/v1/admin/repositories/"+genName+"/generation", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("generation fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	generationCmd.Flags().StringVar(&genName, "name", "", "Nombre del repositorio")

	var cleanName string
	var cleanExpectedGen int64
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Barrer blobs huérfanos del repositorio (exclusión vía cluster)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cleanName == "" {
				return fmt.Errorf("--name es requerido")
			}
			var b []byte
			if cleanExpectedGen >= 0 {
				payload := map[string]any{"expected_generation": cleanExpectedGen}
				b, _ = json.Marshal(payload)
			}
			status, body, err := cl.do("POST", "/v1/admin/repositories/"+cleanName+"/cleanup", b, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("cleanup fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	cleanupCmd.Flags().StringVar(&cleanName, "name", "", "Nombre del repositorio")
	cleanupCmd.Flags().Int64Var(&cleanExpectedGen, "expected-generation", -1, "Generación esperada; aborta si el repo avanzó (opcional)")

	// ───── cluster ─────
	clusterCmd := &cobra.Command{Use: "cluster", Short: "Estado del cluster y registros de limpieza"}

	cleanupsCmd := &cobra.Command{
		Use:   "cleanups",
		Short: "Listar limpiezas en curso en el estado replicado",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/cluster/cleanups", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("cleanups fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	var resetReason string
	resetCleanupsCmd := &cobra.Command{
		Use:   "reset-cleanups",
		Short: "Vaciar los registros de limpieza (recuperación manual)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var b []byte
			if resetReason != "" {
				payload := map[string]any{"reason": resetReason}
				b, _ = json.Marshal(payload)
			}
			status, body, err := cl.do("POST", "/v1/admin/cluster/cleanups/reset", b, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("reset-cleanups fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	resetCleanupsCmd.Flags().StringVar(&resetReason, "reason", "", "Motivo que queda en el log del servidor")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Estado del nodo y del liderazgo",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/cluster/status", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("status fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	nodesCmd := &cobra.Command{
		Use:   "nodes",
		Short: "Listar miembros del cluster con roles y elegibilidad",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/cluster/nodes", nil, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("nodes fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// wiring
	repoCmd.AddCommand(listCmd)
	repoCmd.AddCommand(getCmd)
	repoCmd.AddCommand(putCmd)
	repoCmd.AddCommand(deleteCmd)
	repoCmd.AddCommand(verifyCmd)
	repoCmd.AddCommand(verificationCmd)
	repoCmd.AddCommand(generationCmd)
	repoCmd.AddCommand(cleanupCmd)

	clusterCmd.AddCommand(cleanupsCmd)
	clusterCmd.AddCommand(resetCleanupsCmd)
	clusterCmd.AddCommand(statusCmd)
	clusterCmd.AddCommand(nodesCmd)

	adminCmd.AddCommand(pingCmd)
	root.AddCommand(adminCmd)
	root.AddCommand(repoCmd)
	root.AddCommand(clusterCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
