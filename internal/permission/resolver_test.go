package permission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	"github.com/frahmantamala/scriptdeck/internal/permission"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

type MockRoleStore struct {
	roles      map[string]*roleDatamodel.Role
	failError  error
	levelCalls int
}

func NewMockRoleStore() *MockRoleStore {
	return &MockRoleStore{roles: make(map[string]*roleDatamodel.Role)}
}

func (m *MockRoleStore) AddRole(id string, level int, modules ...string) {
	r := &roleDatamodel.Role{ID: id, Level: level}
	for _, mod := range modules {
		r.Permissions = append(r.Permissions, roleDatamodel.Permission{RoleID: id, ModuleID: mod})
	}
	m.roles[id] = r
}

func (m *MockRoleStore) FindRole(ctx context.Context, id string) (*roleDatamodel.Role, error) {
	if m.failError != nil {
		return nil, m.failError
	}
	return m.roles[id], nil
}

func (m *MockRoleStore) FindRolesFromLevel(ctx context.Context, level int) ([]*roleDatamodel.Role, error) {
	m.levelCalls++
	if m.failError != nil {
		return nil, m.failError
	}
	var out []*roleDatamodel.Role
	for _, r := range m.roles {
		if r.Level >= level {
			out = append(out, r)
		}
	}
	return out, nil
}

var _ = Describe("Resolver", func() {
	var (
		store    *MockRoleStore
		resolver *permission.Resolver
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = NewMockRoleStore()
		store.AddRole("admin", 0, "user_list")
		store.AddRole("operator", 50, "disk_usage")
		store.AddRole("support", 50, "ticket_export")
		store.AddRole("user", 100, "system_info")
		resolver = permission.NewResolver(store, logger.Discard())
	})

	Describe("AccessibleModules", func() {
		It("should give the most privileged role everything", func() {
			ids, err := resolver.AccessibleModules(ctx, "admin")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"disk_usage", "system_info", "ticket_export", "user_list"}))
		})

		It("should include roles at the same level", func() {
			ids, err := resolver.AccessibleModules(ctx, "operator")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"disk_usage", "system_info", "ticket_export"}))
		})

		It("should limit the least privileged role to its own grants", func() {
			ids, err := resolver.AccessibleModules(ctx, "user")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"system_info"}))
		})

		It("should return an empty set for an unknown role", func() {
			ids, err := resolver.AccessibleModules(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("should always contain the direct grants", func() {
			for id, r := range store.roles {
				ids, err := resolver.AccessibleModules(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				for _, p := range r.Permissions {
					Expect(ids).To(ContainElement(p.ModuleID))
				}
			}
		})

		It("should shrink as the level number grows", func() {
			for _, a := range store.roles {
				for _, b := range store.roles {
					if a.Level >= b.Level {
						continue
					}
					wide, err := resolver.AccessibleModules(ctx, a.ID)
					Expect(err).NotTo(HaveOccurred())
					narrow, err := resolver.AccessibleModules(ctx, b.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(wide).To(ContainElements(narrow))
				}
			}
		})

		It("should propagate store errors", func() {
			store.failError = errors.New("db down")
			_, err := resolver.AccessibleModules(ctx, "admin")
			Expect(err).To(MatchError("db down"))
		})
	})

	Describe("HasAccess", func() {
		It("should report membership", func() {
			Expect(resolver.HasAccess(ctx, "user", "system_info")).To(BeTrue())
			Expect(resolver.HasAccess(ctx, "user", "user_list")).To(BeFalse())
			Expect(resolver.HasAccess(ctx, "admin", "system_info")).To(BeTrue())
		})

		It("should fail closed on store errors", func() {
			store.failError = errors.New("db down")
			Expect(resolver.HasAccess(ctx, "admin", "user_list")).To(BeFalse())
		})
	})

	Describe("caching", func() {
		BeforeEach(func() {
			resolver = permission.NewResolver(store, logger.Discard(), permission.WithCache(16, time.Minute))
		})

		It("should serve repeated lookups from the cache until invalidated", func() {
			Expect(resolver.HasAccess(ctx, "user", "system_info")).To(BeTrue())
			store.roles["user"].Permissions = nil
			Expect(resolver.HasAccess(ctx, "user", "system_info")).To(BeTrue())
			Expect(store.levelCalls).To(Equal(1))

			resolver.Invalidate()

			Expect(resolver.HasAccess(ctx, "user", "system_info")).To(BeFalse())
			Expect(store.levelCalls).To(Equal(2))
		})

		It("should not cache anything when disabled", func() {
			resolver = permission.NewResolver(store, logger.Discard(), permission.WithCache(16, 0))
			resolver.HasAccess(ctx, "user", "system_info")
			resolver.HasAccess(ctx, "user", "system_info")
			Expect(store.levelCalls).To(Equal(2))
		})
	})
})
