package execution_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
	"github.com/frahmantamala/scriptdeck/internal/database"
	"github.com/frahmantamala/scriptdeck/internal/execution"
	executionPostgres "github.com/frahmantamala/scriptdeck/internal/execution/postgres"
	"github.com/frahmantamala/scriptdeck/internal/transport"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExecution(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Execution Audit Suite")
}

var _ = Describe("Execution audit", func() {
	var (
		db      *gorm.DB
		ctx     context.Context
		bus     *events.EventBus
		service *execution.Service
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

		sqlxDB, err := database.SQLX(db, database.DriverSQLite)
		Expect(err).NotTo(HaveOccurred())

		bus = events.NewEventBus(logger.Discard())
		service = execution.NewService(executionPostgres.NewExecutionRepository(sqlxDB), logger.Discard())
		service.Subscribe(bus)
	})

	publish := func(moduleID string, userID int64, status string, exitCode *int, startedAt time.Time) {
		e := events.NewExecutionCompletedEvent(uuid.NewString(), moduleID, "user", userID, status, exitCode, 42, "", startedAt)
		Expect(bus.Publish(ctx, e)).To(Succeed())
	}

	drain := func() {
		c, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		Expect(bus.Drain(c)).To(Succeed())
	}

	It("should record completed executions newest first", func() {
		zero := 0
		base := time.Now().Add(-time.Hour)
		publish("system_info", 1, "succeeded", &zero, base)
		publish("disk_usage", 2, "denied", nil, base.Add(time.Minute))
		drain()

		records, err := service.ListRecent(ctx, execution.ListFilter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].ModuleID).To(Equal("disk_usage"))
		Expect(records[0].ExitCode).To(BeNil())
		Expect(records[1].Status).To(Equal("succeeded"))
		Expect(*records[1].ExitCode).To(Equal(0))
		Expect(records[1].ElapsedMs).To(Equal(int64(42)))
	})

	It("should filter by module and user and honour the limit", func() {
		now := time.Now()
		for i := 0; i < 3; i++ {
			publish("system_info", 1, "succeeded", nil, now.Add(time.Duration(i)*time.Second))
		}
		publish("system_info", 2, "failed", nil, now)
		publish("disk_usage", 1, "succeeded", nil, now)
		drain()

		records, err := service.ListRecent(ctx, execution.ListFilter{ModuleID: "system_info", UserID: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))

		records, err = service.ListRecent(ctx, execution.ListFilter{Limit: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
	})

	It("should serve the admin listing", func() {
		publish("system_info", 9, "timed_out", nil, time.Now())
		drain()

		h := execution.NewHandler(transport.NewBaseHandler(logger.Discard()), service)
		w := httptest.NewRecorder()
		h.ListExecutions(w, httptest.NewRequest(http.MethodGet, "/admin/executions?user_id=9", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp execution.RecordsResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Executions).To(HaveLen(1))
		Expect(resp.Executions[0].Status).To(Equal("timed_out"))

		w = httptest.NewRecorder()
		h.ListExecutions(w, httptest.NewRequest(http.MethodGet, "/admin/executions?limit=abc", nil))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
