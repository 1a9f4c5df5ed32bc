package user_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/auth"
	"github.com/frahmantamala/scriptdeck/internal/database"
	"github.com/frahmantamala/scriptdeck/internal/role"
	rolePostgres "github.com/frahmantamala/scriptdeck/internal/role/postgres"
	"github.com/frahmantamala/scriptdeck/internal/transport"
	"github.com/frahmantamala/scriptdeck/internal/user"
	userPostgres "github.com/frahmantamala/scriptdeck/internal/user/postgres"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestUser(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Suite")
}

var _ = Describe("User Service", func() {
	var (
		db       *gorm.DB
		ctx      context.Context
		roleRepo *rolePostgres.RoleRepository
		userRepo *userPostgres.UserRepository
		roles    *role.Service
		service  *user.Service
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

		roleRepo = rolePostgres.NewRoleRepository(db)
		userRepo = userPostgres.NewUserRepository(db)
		roles = role.NewService(roleRepo, nil, nil, logger.Discard())
		Expect(roles.EnsureBuiltIns(ctx)).To(Succeed())
		service = user.NewService(userRepo, roleRepo, bcrypt.MinCost, logger.Discard())
	})

	Describe("Create", func() {
		It("should store a bcrypt hash and default to active", func() {
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "carol", Password: "s3cretpass", RoleID: role.Operator})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).NotTo(BeZero())
			Expect(u.IsActive).To(BeTrue())
			Expect(u.PasswordHash).NotTo(Equal("s3cretpass"))
			Expect(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretpass"))).To(Succeed())
		})

		It("should refuse unknown roles and duplicate usernames", func() {
			_, err := service.Create(ctx, &user.CreateUserDTO{Username: "carol", Password: "s3cretpass", RoleID: "ghost"})
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())

			_, err = service.Create(ctx, &user.CreateUserDTO{Username: "carol", Password: "s3cretpass", RoleID: role.User})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, &user.CreateUserDTO{Username: "carol", Password: "s3cretpass", RoleID: role.User})
			Expect(errors.Is(err, internal.ErrUserExists)).To(BeTrue())
		})

		It("should validate the payload", func() {
			_, err := service.Create(ctx, &user.CreateUserDTO{Username: "../x", Password: "short"})
			fields := internal.FieldErrors(err)
			Expect(fields).To(HaveLen(3))
		})
	})

	Describe("LoadIdentity", func() {
		It("should carry the current role level", func() {
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "dave", Password: "s3cretpass", RoleID: role.User})
			Expect(err).NotTo(HaveOccurred())

			identity, err := service.LoadIdentity(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.RoleLevel).To(Equal(100))

			_, err = service.ChangeRole(ctx, u.ID, &user.ChangeRoleDTO{RoleID: role.Operator})
			Expect(err).NotTo(HaveOccurred())

			identity, err = service.LoadIdentity(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.RoleID).To(Equal(role.Operator))
			Expect(identity.RoleLevel).To(Equal(50))
		})

		It("should reject inactive users and dangling roles", func() {
			inactive := false
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "erin", Password: "s3cretpass", RoleID: role.User, Active: &inactive})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.LoadIdentity(ctx, u.ID)
			Expect(errors.Is(err, internal.ErrUserInactive)).To(BeTrue())

			_, err = roles.Create(ctx, &role.CreateRoleDTO{ID: "temp", Level: 70})
			Expect(err).NotTo(HaveOccurred())
			v, err := service.Create(ctx, &user.CreateUserDTO{Username: "frank", Password: "s3cretpass", RoleID: "temp"})
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Exec("DELETE FROM roles WHERE id = ?", "temp").Error).To(Succeed())

			_, err = service.LoadIdentity(ctx, v.ID)
			Expect(errors.Is(err, internal.ErrInvalidToken)).To(BeTrue())
		})

		It("should reject unknown users", func() {
			_, err := service.LoadIdentity(ctx, 999)
			Expect(errors.Is(err, internal.ErrInvalidToken)).To(BeTrue())
		})
	})

	Describe("ChangeRole", func() {
		It("should refuse unknown roles and users", func() {
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "gina", Password: "s3cretpass", RoleID: role.User})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ChangeRole(ctx, u.ID, &user.ChangeRoleDTO{RoleID: "ghost"})
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())

			_, err = service.ChangeRole(ctx, 999, &user.ChangeRoleDTO{RoleID: role.User})
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})

		It("should block deleting a role that is held", func() {
			_, err := roles.Create(ctx, &role.CreateRoleDTO{ID: "support", Level: 60})
			Expect(err).NotTo(HaveOccurred())
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "hank", Password: "s3cretpass", RoleID: "support"})
			Expect(err).NotTo(HaveOccurred())

			Expect(errors.Is(roles.Delete(ctx, "support"), internal.ErrRoleInUse)).To(BeTrue())

			_, err = service.ChangeRole(ctx, u.ID, &user.ChangeRoleDTO{RoleID: role.User})
			Expect(err).NotTo(HaveOccurred())
			Expect(roles.Delete(ctx, "support")).To(Succeed())
		})
	})

	Describe("Login through the local authenticator", func() {
		It("should authenticate against stored hashes", func() {
			_, err := service.Create(ctx, &user.CreateUserDTO{Username: "ivy", Password: "s3cretpass", RoleID: role.Admin})
			Expect(err).NotTo(HaveOccurred())

			tokens := auth.NewJWTTokenGenerator("access-secret-access-secret-0123", "refresh-secret-refresh-secret-01", time.Minute, time.Hour)
			authService := auth.NewService(auth.NewLocalAuthenticator(userRepo, service, logger.Discard()), service, tokens, logger.Discard())

			pair, err := authService.Login(ctx, auth.LoginDTO{Username: "ivy", Password: "s3cretpass"})
			Expect(err).NotTo(HaveOccurred())

			identity, err := authService.Authenticate(ctx, pair.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.IsAdmin()).To(BeTrue())

			_, err = authService.Login(ctx, auth.LoginDTO{Username: "ivy", Password: "wrongpass"})
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
		})
	})

	Describe("Handler", func() {
		var router *chi.Mux

		BeforeEach(func() {
			h := user.NewHandler(transport.NewBaseHandler(logger.Discard()), service)
			router = chi.NewRouter()
			router.Post("/admin/users", h.CreateUser)
			router.Put("/admin/users/{id}/role", h.ChangeRole)
			router.Get("/users/me", h.GetCurrentUser)
		})

		It("should create users and hide the hash", func() {
			body, _ := json.Marshal(map[string]string{"username": "jo", "password": "s3cretpass", "role": "user"})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(body)))

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Body.String()).NotTo(ContainSubstring("$2a$"))
		})

		It("should reject a malformed user id", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/users/abc/role", bytes.NewReader([]byte(`{"role":"user"}`))))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return the profile of the caller", func() {
			u, err := service.Create(ctx, &user.CreateUserDTO{Username: "kim", Password: "s3cretpass", RoleID: role.Operator})
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			req = req.WithContext(internal.ContextWithIdentity(req.Context(), &internal.Identity{UserID: u.ID, RoleID: role.Operator, RoleLevel: 50}))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var profile map[string]interface{}
			Expect(json.NewDecoder(w.Body).Decode(&profile)).To(Succeed())
			Expect(profile["username"]).To(Equal("kim"))
			Expect(profile["role_level"]).To(BeEquivalentTo(50))
		})
	})
})
