//go:build !windows

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/database"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
	"github.com/frahmantamala/scriptdeck/internal/role"
	"github.com/frahmantamala/scriptdeck/internal/transport/middleware"
	"github.com/frahmantamala/scriptdeck/internal/user"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Wiring Suite")
}

var _ = Describe("HTTP server", func() {
	var (
		ctx    context.Context
		deps   *Dependencies
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()

		dir := GinkgoT().TempDir()
		err := os.WriteFile(filepath.Join(dir, "greet.sh"), []byte("#!/bin/sh\nprintf 'hello %s\\n' \"$@\"\n"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		cfg := internal.DefaultConfig()
		cfg.Database = internal.DatabaseConfig{
			Driver:       database.DriverSQLite,
			Source:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		}
		cfg.Security.AccessTokenSecret = "access-secret-access-secret-0123456789"
		cfg.Security.RefreshTokenSecret = "refresh-secret-refresh-secret-0123456789"
		cfg.Security.BCryptCost = 4
		cfg.Execution.ScriptsDir = dir
		cfg.Execution.InheritEnv = []string{"PATH"}
		Expect(cfg.Validate()).To(Succeed())

		db, err := database.Open(cfg.Database, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(database.AutoMigrate(db)).To(Succeed())

		deps, err = buildDependencies(cfg, db, logger.Discard(), prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = deps.Close() })

		Expect(deps.Roles.EnsureBuiltIns(ctx)).To(Succeed())
		_, err = deps.Modules.Create(ctx, &module.CreateModuleDTO{
			ID:         "greet",
			Name:       "Greet",
			Executable: "greet.sh",
			Parameters: []parameter.Definition{{Name: "name", Type: parameter.TypeText, Required: true}},
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = deps.Roles.GrantPermission(ctx, role.User, &role.GrantPermissionDTO{ModuleID: "greet"})
		Expect(err).NotTo(HaveOccurred())

		for username, roleID := range map[string]string{"root": role.Admin, "alice": role.User} {
			_, err = deps.Users.Create(ctx, &user.CreateUserDTO{Username: username, Password: "correct-horse", RoleID: roleID})
			Expect(err).NotTo(HaveOccurred())
		}

		server = httptest.NewServer(setupRoutes(deps))
		DeferCleanup(server.Close)
	})

	do := func(method, path, token string, body interface{}) (*http.Response, []byte) {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, server.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	login := func(username string) string {
		resp, data := do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": "correct-horse"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK), string(data))
		var tokens struct {
			AccessToken string `json:"access_token"`
		}
		Expect(json.Unmarshal(data, &tokens)).To(Succeed())
		Expect(tokens.AccessToken).NotTo(BeEmpty())
		return tokens.AccessToken
	}

	It("should serve the public endpoints", func() {
		resp, data := do(http.MethodGet, "/api/v1/health", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(data)).To(ContainSubstring(`"sqlite"`))
		Expect(resp.Header.Get(middleware.TraceHeader)).NotTo(BeEmpty())

		resp, data = do(http.MethodGet, "/openapi.yml", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(data)).To(HavePrefix("openapi: 3.0.3"))
	})

	It("should require a bearer token for module routes", func() {
		resp, _ := do(http.MethodGet, "/api/v1/modules", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("should list, execute and audit a granted module", func() {
		token := login("alice")

		resp, data := do(http.MethodGet, "/api/v1/modules", token, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(data)).To(ContainSubstring(`"id":"greet"`))
		Expect(string(data)).NotTo(ContainSubstring("greet.sh"))

		resp, data = do(http.MethodPost, "/api/v1/modules/greet/execute", token,
			map[string]interface{}{"parameters": map[string]interface{}{"name": "world"}})
		Expect(resp.StatusCode).To(Equal(http.StatusOK), string(data))
		var result struct {
			Success bool   `json:"success"`
			Status  string `json:"status"`
			Output  string `json:"output"`
		}
		Expect(json.Unmarshal(data, &result)).To(Succeed())
		Expect(result.Success).To(BeTrue())
		Expect(result.Output).To(Equal("hello --name=world\n"))

		resp, _ = do(http.MethodPost, "/api/v1/modules/greet/execute", token, map[string]interface{}{})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		Expect(deps.Bus.Drain(drainCtx)).To(Succeed())

		resp, data = do(http.MethodGet, "/api/v1/admin/executions?module=greet", login("root"), nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var records struct {
			Executions []struct {
				Status string `json:"status"`
				Role   string `json:"role"`
			} `json:"executions"`
		}
		Expect(json.Unmarshal(data, &records)).To(Succeed())
		Expect(records.Executions).To(HaveLen(2))
		Expect(records.Executions[0].Role).To(Equal(role.User))

		resp, data = do(http.MethodGet, "/metrics", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(data)).To(ContainSubstring(`scriptdeck_module_executions_total{module="greet",status="succeeded"} 1`))
	})

	It("should keep administrative routes to admins", func() {
		resp, _ := do(http.MethodGet, "/api/v1/admin/roles", login("alice"), nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		resp, data := do(http.MethodGet, "/api/v1/admin/roles", login("root"), nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(data)).To(ContainSubstring(`"id":"operator"`))
	})

	It("should apply a role change on the next request", func() {
		token := login("alice")
		resp, _ := do(http.MethodGet, "/api/v1/modules/greet", token, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		admin := login("root")
		resp, data := do(http.MethodPost, "/api/v1/admin/roles", admin, map[string]interface{}{"id": "guest", "level": 200})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(data))

		var listed struct {
			Users []struct {
				ID       int64  `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		}
		_, data = do(http.MethodGet, "/api/v1/admin/users", admin, nil)
		Expect(json.Unmarshal(data, &listed)).To(Succeed())
		var aliceID int64
		for _, u := range listed.Users {
			if u.Username == "alice" {
				aliceID = u.ID
			}
		}
		Expect(aliceID).NotTo(BeZero())

		resp, data = do(http.MethodPut, "/api/v1/admin/users/"+strconv.FormatInt(aliceID, 10)+"/role", admin, map[string]string{"role": "guest"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK), string(data))

		resp, _ = do(http.MethodGet, "/api/v1/modules/greet", token, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
	})
})
