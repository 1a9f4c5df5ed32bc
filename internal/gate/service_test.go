//go:build !windows

package gate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
	"github.com/frahmantamala/scriptdeck/internal/database"
	"github.com/frahmantamala/scriptdeck/internal/executor"
	"github.com/frahmantamala/scriptdeck/internal/gate"
	"github.com/frahmantamala/scriptdeck/internal/module"
	modulePostgres "github.com/frahmantamala/scriptdeck/internal/module/postgres"
	"github.com/frahmantamala/scriptdeck/internal/observability"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
	"github.com/frahmantamala/scriptdeck/internal/permission"
	"github.com/frahmantamala/scriptdeck/internal/role"
	rolePostgres "github.com/frahmantamala/scriptdeck/internal/role/postgres"
	"github.com/frahmantamala/scriptdeck/internal/transport"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

func TestGate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Access Gate Suite")
}

type countingRunner struct {
	inner *executor.Runner
	mu    sync.Mutex
	calls int
	envs  []map[string]string
	args  [][]string
}

func (c *countingRunner) Run(ctx context.Context, name string, args []string, timeout time.Duration, env map[string]string) (*executor.Output, error) {
	c.mu.Lock()
	c.calls++
	c.envs = append(c.envs, env)
	c.args = append(c.args, args)
	c.mu.Unlock()
	return c.inner.Run(ctx, name, args, timeout, env)
}

func (c *countingRunner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type eventSink struct {
	mu     sync.Mutex
	events []*events.ExecutionCompletedEvent
}

func (s *eventSink) handle(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e.(*events.ExecutionCompletedEvent))
	return nil
}

func (s *eventSink) All() []*events.ExecutionCompletedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.ExecutionCompletedEvent(nil), s.events...)
}

func writeScript(dir, name, body string) {
	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Access Gate", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		runner   *countingRunner
		bus      *events.EventBus
		sink     *eventSink
		service  *gate.Service
		modules  *module.Service
		roles    *role.Service
		user     *internal.Identity
		operator *internal.Identity
		admin    *internal.Identity
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = database.Open(internal.DatabaseConfig{
			Driver:       database.DriverSQLite,
			Source:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(database.AutoMigrate(db)).To(Succeed())
		DeferCleanup(func() {
			sqlDB, _ := db.DB()
			_ = sqlDB.Close()
		})

		dir := GinkgoT().TempDir()
		writeScript(dir, "system_info.sh", `printf 'host=ok user=%s module=%s\n' "$SCRIPTDECK_USER_ID" "$SCRIPTDECK_MODULE_ID"`)
		writeScript(dir, "disk_usage.sh", `printf '%s\n' "$@"`)
		writeScript(dir, "user_list.sh", `echo should-not-run`)
		writeScript(dir, "slow.sh", `exec sleep 5`)
		writeScript(dir, "broken.sh", `echo "disk on fire" >&2; exit 3`)

		cfg := internal.ExecutionConfig{
			ScriptsDir:     dir,
			DefaultTimeout: 5 * time.Second,
			MaxTimeout:     10 * time.Second,
			MaxOutputBytes: 1 << 16,
			InheritEnv:     []string{"PATH"},
		}
		inner, err := executor.NewRunner(cfg, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		runner = &countingRunner{inner: inner}

		roleRepo := rolePostgres.NewRoleRepository(db)
		resolver := permission.NewResolver(roleRepo, logger.Discard())
		modules = module.NewService(modulePostgres.NewModuleRepository(db), resolver, logger.Discard())
		roles = role.NewService(roleRepo, modules, resolver, logger.Discard())
		Expect(roles.EnsureBuiltIns(ctx)).To(Succeed())

		disabled := false
		for _, dto := range []*module.CreateModuleDTO{
			{ID: "system_info", Name: "System Info", Executable: "system_info.sh"},
			{ID: "disk_usage", Name: "Disk Usage", Executable: "disk_usage.sh", Parameters: []parameter.Definition{
				{Name: "min-size", Type: parameter.TypeNumber, Default: parameter.NumberDefault(0)},
				{Name: "format", Type: parameter.TypeText, Validation: `^(text|json)$`, ValidationMessage: "format must be one of: text, json"},
			}},
			{ID: "user_list", Name: "User List", Executable: "user_list.sh"},
			{ID: "slow", Name: "Slow", Executable: "slow.sh", TimeoutMs: 100},
			{ID: "broken", Name: "Broken", Executable: "broken.sh"},
			{ID: "retired", Name: "Retired", Executable: "retired.sh", Enabled: &disabled},
		} {
			_, err := modules.Create(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
		}
		for roleID, moduleIDs := range map[string][]string{
			role.User:     {"system_info", "slow", "broken", "retired"},
			role.Operator: {"disk_usage"},
			role.Admin:    {"user_list"},
		} {
			for _, id := range moduleIDs {
				_, err := roles.GrantPermission(ctx, roleID, &role.GrantPermissionDTO{ModuleID: id})
				Expect(err).NotTo(HaveOccurred())
			}
		}

		bus = events.NewEventBus(logger.Discard())
		sink = &eventSink{}
		bus.Subscribe(events.EventTypeExecutionCompleted, sink.handle)

		metrics := observability.NewMetrics(prometheus.NewRegistry())
		service = gate.NewService(resolver, modules, runner, bus, metrics, cfg, logger.Discard())

		user = &internal.Identity{UserID: 11, Username: "u1", RoleID: role.User, RoleLevel: 100}
		operator = &internal.Identity{UserID: 12, Username: "op", RoleID: role.Operator, RoleLevel: 50}
		admin = &internal.Identity{UserID: 1, Username: "root", RoleID: role.Admin, RoleLevel: 0}
	})

	drain := func() {
		c, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		Expect(bus.Drain(c)).To(Succeed())
	}

	Describe("ExecuteModule", func() {
		It("should deny a module outside the role's grants without spawning", func() {
			res := service.ExecuteModule(ctx, user, "user_list", map[string]interface{}{})

			Expect(res.Status).To(Equal(gate.StatusDenied))
			Expect(res.Success).To(BeFalse())
			Expect(runner.Calls()).To(BeZero())
		})

		It("should reject invalid parameters with one message and no spawn", func() {
			res := service.ExecuteModule(ctx, operator, "disk_usage", map[string]interface{}{"format": "xml"})

			Expect(res.Status).To(Equal(gate.StatusInvalidParameters))
			Expect(res.ValidationErrors).To(HaveLen(1))
			Expect(res.ValidationErrors[0].Message).To(Equal("format must be one of: text, json"))
			Expect(runner.Calls()).To(BeZero())
		})

		It("should return the script's stdout on success", func() {
			res := service.ExecuteModule(ctx, user, "system_info", map[string]interface{}{})

			Expect(res.Status).To(Equal(gate.StatusSucceeded))
			Expect(res.Success).To(BeTrue())
			Expect(res.Output).To(Equal("host=ok user=11 module=system_info\n"))
			Expect(res.ElapsedMs).To(BeNumerically(">", 0))
			Expect(*res.ExitCode).To(Equal(0))
		})

		It("should log granted access at info level", func() {
			buf := gbytes.NewBuffer()
			infoLogger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			res := service.ExecuteModule(logger.NewContext(ctx, infoLogger), user, "system_info", nil)

			Expect(res.Status).To(Equal(gate.StatusSucceeded))
			Expect(buf).To(gbytes.Say(`"level":"INFO","msg":"access granted"`))
		})

		It("should pass validated flags and audit metadata to the script", func() {
			res := service.ExecuteModule(ctx, operator, "disk_usage", map[string]interface{}{"format": " json "})

			Expect(res.Status).To(Equal(gate.StatusSucceeded))
			Expect(res.Output).To(Equal("--min-size=0\n--format=json\n"))
			Expect(runner.envs[0]).To(HaveKeyWithValue(gate.EnvUserID, "12"))
			Expect(runner.envs[0]).To(HaveKeyWithValue(gate.EnvModuleID, "disk_usage"))
			Expect(runner.envs[0]).To(HaveKeyWithValue(gate.EnvExecutionID, res.ExecutionID))
			Expect(runner.envs[0]).To(HaveKeyWithValue(gate.EnvTimeoutMs, "5000"))
		})

		It("should let admins run modules granted to any role", func() {
			res := service.ExecuteModule(ctx, admin, "system_info", nil)
			Expect(res.Status).To(Equal(gate.StatusSucceeded))
		})

		It("should report a disabled module as not found without spawning", func() {
			res := service.ExecuteModule(ctx, user, "retired", nil)

			Expect(res.Status).To(Equal(gate.StatusNotFound))
			Expect(runner.Calls()).To(BeZero())
		})

		It("should kill a module that exceeds its timeout", func() {
			res := service.ExecuteModule(ctx, user, "slow", nil)

			Expect(res.Status).To(Equal(gate.StatusTimedOut))
			Expect(res.ElapsedMs).To(BeNumerically(">=", 100))
			Expect(res.ElapsedMs).To(BeNumerically("<", 3000))
		})

		It("should capture stderr and the exit code of a failing module", func() {
			res := service.ExecuteModule(ctx, user, "broken", nil)

			Expect(res.Status).To(Equal(gate.StatusFailed))
			Expect(res.Stderr).To(ContainSubstring("disk on fire"))
			Expect(*res.ExitCode).To(Equal(3))
			Expect(res.Error).To(ContainSubstring("exit code 3"))
		})

		It("should normalize the requested module id", func() {
			res := service.ExecuteModule(ctx, user, "  System_Info ", nil)
			Expect(res.ModuleID).To(Equal("system_info"))
			Expect(res.Status).To(Equal(gate.StatusSucceeded))
		})

		It("should deny a caller without a role", func() {
			res := service.ExecuteModule(ctx, nil, "system_info", nil)
			Expect(res.Status).To(Equal(gate.StatusDenied))
		})

		It("should publish one completion event per request", func() {
			service.ExecuteModule(ctx, user, "system_info", nil)
			service.ExecuteModule(ctx, user, "user_list", nil)
			drain()

			published := sink.All()
			Expect(published).To(HaveLen(2))
			statuses := []string{published[0].Status, published[1].Status}
			Expect(statuses).To(ConsistOf("succeeded", "denied"))
		})

		It("should run concurrent requests independently", func() {
			var wg sync.WaitGroup
			results := make([]*gate.Result, 4)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					results[i] = service.ExecuteModule(ctx, user, "system_info", nil)
				}(i)
			}
			wg.Wait()

			ids := map[string]struct{}{}
			for _, res := range results {
				Expect(res.Status).To(Equal(gate.StatusSucceeded))
				ids[res.ExecutionID] = struct{}{}
			}
			Expect(ids).To(HaveLen(4))
		})
	})

	Describe("ListAccessibleModules", func() {
		It("should list enabled granted modules sorted by name", func() {
			list, err := service.ListAccessibleModules(ctx, user)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(list))
			for _, m := range list {
				names = append(names, m.Name)
			}
			Expect(names).To(Equal([]string{"Broken", "Slow", "System Info"}))
		})

		It("should include every lower tier for the admin", func() {
			list, err := service.ListAccessibleModules(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(5))
		})
	})

	Describe("GetModule", func() {
		It("should authorize before looking the module up", func() {
			_, err := service.GetModule(ctx, user, "does_not_exist")
			Expect(err).To(MatchError(internal.ErrAccessDenied))

			_, err = service.GetModule(ctx, user, "retired")
			Expect(err).To(MatchError(internal.ErrModuleNotFound))

			m, err := service.GetModule(ctx, operator, "disk_usage")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Parameters).To(HaveLen(2))
		})
	})

	Describe("Handler", func() {
		var router *chi.Mux

		serve := func(caller *internal.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
			var buf bytes.Buffer
			if body != nil {
				Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
			}
			req := httptest.NewRequest(method, path, &buf)
			if caller != nil {
				req = req.WithContext(internal.ContextWithIdentity(req.Context(), caller))
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		BeforeEach(func() {
			h := gate.NewHandler(transport.NewBaseHandler(logger.Discard()), service, false, 2)
			router = chi.NewRouter()
			h.MountRoutes(router)
		})

		It("should redact stderr for ordinary callers", func() {
			w := serve(user, http.MethodPost, "/modules/broken/execute", gate.ExecuteRequest{})

			Expect(w.Code).To(Equal(http.StatusBadGateway))
			var res gate.Result
			Expect(json.NewDecoder(w.Body).Decode(&res)).To(Succeed())
			Expect(res.Status).To(Equal(gate.StatusFailed))
			Expect(res.Stderr).To(BeEmpty())
		})

		It("should show stderr to admins", func() {
			_, err := roles.GrantPermission(ctx, role.Admin, &role.GrantPermissionDTO{ModuleID: "broken"})
			Expect(err).NotTo(HaveOccurred())

			w := serve(admin, http.MethodPost, "/modules/broken/execute", nil)

			var res gate.Result
			Expect(json.NewDecoder(w.Body).Decode(&res)).To(Succeed())
			Expect(res.Stderr).To(ContainSubstring("disk on fire"))
		})

		It("should map denials and validation failures to status codes", func() {
			Expect(serve(user, http.MethodPost, "/modules/user_list/execute", nil).Code).To(Equal(http.StatusForbidden))

			w := serve(operator, http.MethodPost, "/modules/disk_usage/execute",
				gate.ExecuteRequest{Parameters: map[string]interface{}{"format": "xml"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("format must be one of: text, json"))
		})

		It("should rate limit executions per user", func() {
			for i := 0; i < 2; i++ {
				Expect(serve(user, http.MethodPost, "/modules/system_info/execute", nil).Code).To(Equal(http.StatusOK))
			}
			Expect(serve(user, http.MethodPost, "/modules/system_info/execute", nil).Code).To(Equal(http.StatusTooManyRequests))
			Expect(serve(operator, http.MethodPost, "/modules/disk_usage/execute", nil).Code).To(Equal(http.StatusOK))
		})

		It("should list only accessible modules", func() {
			w := serve(operator, http.MethodGet, "/modules", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp module.ModulesResponse
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp.Modules).To(HaveLen(4))
		})
	})
})
