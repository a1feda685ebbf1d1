package user

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
	"github.com/yatrisafe/tourist-safety/internal/session"
)

func TestUser(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "User Module Suite")
}

type memoryUserRepo struct {
	users map[int64]*User
	err   error

	deleted []int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*User)}
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUserRepo) List(ctx context.Context, limit, offset int) ([]*User, int64, error) {
	var out []*User
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, int64(len(m.users)), nil
}

func (m *memoryUserRepo) Update(ctx context.Context, u *User) error {
	if m.err != nil {
		return m.err
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memoryUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	if u, ok := m.users[id]; ok {
		u.IsActive = active
	}
	return nil
}

func (m *memoryUserRepo) Delete(ctx context.Context, id int64) error {
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type stubSessions struct {
	byID        map[string]*session.Session
	ended       []string
	endAllCalls []int64
	active      []*session.Session
}

func newStubSessions() *stubSessions {
	return &stubSessions{byID: make(map[string]*session.Session)}
}

func (m *stubSessions) Get(ctx context.Context, id string) (*session.Session, error) {
	return m.byID[id], nil
}

func (m *stubSessions) End(ctx context.Context, id string) error {
	m.ended = append(m.ended, id)
	return nil
}

func (m *stubSessions) EndAllForUser(ctx context.Context, userID int64) (int64, error) {
	m.endAllCalls = append(m.endAllCalls, userID)
	return int64(len(m.active)), nil
}

func (m *stubSessions) ListActive(ctx context.Context, userID int64) ([]*session.Session, error) {
	return m.active, nil
}

type stubRoles struct {
	roles map[string]*rbac.Role
	perms []string
}

func (m *stubRoles) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	if role, ok := m.roles[name]; ok {
		return role, nil
	}
	return nil, internal.ErrRoleNotFound
}

func (m *stubRoles) PermissionsFor(ctx context.Context, userID int64) ([]string, error) {
	return m.perms, nil
}

type stubAuditor struct {
	entries []audit.Entry
}

func (m *stubAuditor) Record(ctx context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *stubAuditor) actions() []string {
	actions := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

var _ = ginkgo.Describe("UserService", func() {
	var (
		service  *Service
		repo     *memoryUserRepo
		sessions *stubSessions
		roles    *stubRoles
		auditor  *stubAuditor
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMemoryUserRepo()
		sessions = newStubSessions()
		roles = &stubRoles{
			roles: map[string]*rbac.Role{
				"operator": {Name: "operator", IsActive: true},
				"viewer":   {Name: "viewer", IsActive: true},
			},
			perms: []string{rbac.PermTouristsView},
		}
		auditor = &stubAuditor{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, sessions, roles, auditor, logger)

		repo.users[1] = &User{
			ID:       1,
			Email:    "one@example.com",
			Name:     "User One",
			RoleName: "viewer",
			IsActive: true,
		}
	})

	ginkgo.Describe("GetByID", func() {
		ginkgo.It("returns the user with resolved permissions", func() {
			u, err := service.GetByID(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(u.Permissions).To(gomega.Equal([]string{rbac.PermTouristsView}))
		})

		ginkgo.It("returns not found for a missing user", func() {
			u, err := service.GetByID(ctx, 99)

			gomega.Expect(err).To(gomega.Equal(internal.ErrUserNotFound))
			gomega.Expect(u).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("List", func() {
		ginkgo.It("clamps the page size into range", func() {
			result, err := service.List(ctx, ListUsersDTO{Limit: 9999, Offset: -1})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Limit).To(gomega.Equal(200))
			gomega.Expect(result.Offset).To(gomega.Equal(0))
			gomega.Expect(result.Total).To(gomega.Equal(int64(1)))
		})
	})

	ginkgo.Describe("Update", func() {
		ginkgo.It("applies field changes and audits before and after", func() {
			name := "Renamed One"
			role := "operator"
			_, err := service.Update(ctx, 1, UpdateUserDTO{Name: &name, RoleName: &role})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.users[1].Name).To(gomega.Equal("Renamed One"))
			gomega.Expect(repo.users[1].RoleName).To(gomega.Equal("operator"))
			gomega.Expect(auditor.actions()).To(gomega.ContainElement(audit.ActionUserUpdated))
			gomega.Expect(auditor.entries[0].OldValue).To(gomega.ContainSubstring("User One"))
			gomega.Expect(auditor.entries[0].NewValue).To(gomega.ContainSubstring("Renamed One"))
		})

		ginkgo.It("rejects assigning a role that does not exist", func() {
			role := "warlord"
			_, err := service.Update(ctx, 1, UpdateUserDTO{RoleName: &role})

			gomega.Expect(err).To(gomega.Equal(internal.ErrRoleNotFound))
			gomega.Expect(repo.users[1].RoleName).To(gomega.Equal("viewer"))
		})

		ginkgo.It("rejects special permissions outside the catalog", func() {
			_, err := service.Update(ctx, 1, UpdateUserDTO{
				SpecialPermissions: []string{rbac.PermAuditView, "universe.admin"},
			})

			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeValidation))
		})

		ginkgo.It("accepts catalog special permissions", func() {
			updated, err := service.Update(ctx, 1, UpdateUserDTO{
				SpecialPermissions: []string{rbac.PermAuditView},
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(updated.SpecialPermissions).To(gomega.Equal([]string{rbac.PermAuditView}))
		})

		ginkgo.It("revokes all sessions when the edit deactivates the account", func() {
			inactive := false
			_, err := service.Update(ctx, 1, UpdateUserDTO{IsActive: &inactive})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sessions.endAllCalls).To(gomega.Equal([]int64{1}))
		})

		ginkgo.It("does not revoke sessions for an edit that keeps the account active", func() {
			name := "Still Active"
			_, err := service.Update(ctx, 1, UpdateUserDTO{Name: &name})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sessions.endAllCalls).To(gomega.BeEmpty())
		})

		ginkgo.It("fails for a missing user", func() {
			name := "Ghost"
			_, err := service.Update(ctx, 99, UpdateUserDTO{Name: &name})

			gomega.Expect(err).To(gomega.Equal(internal.ErrUserNotFound))
		})
	})

	ginkgo.Describe("Deactivate", func() {
		ginkgo.It("disables the account and ends its sessions", func() {
			err := service.Deactivate(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.users[1].IsActive).To(gomega.BeFalse())
			gomega.Expect(sessions.endAllCalls).To(gomega.Equal([]int64{1}))
			gomega.Expect(auditor.actions()).To(gomega.ContainElement(audit.ActionUserDeactivated))
		})
	})

	ginkgo.Describe("Delete", func() {
		ginkgo.It("revokes sessions, removes the user and keeps an audit snapshot", func() {
			err := service.Delete(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.deleted).To(gomega.Equal([]int64{1}))
			gomega.Expect(sessions.endAllCalls).To(gomega.Equal([]int64{1}))
			gomega.Expect(auditor.actions()).To(gomega.ContainElement(audit.ActionUserDeleted))
			gomega.Expect(auditor.entries[0].OldValue).To(gomega.ContainSubstring("one@example.com"))
		})

		ginkgo.It("fails for a missing user without touching sessions", func() {
			err := service.Delete(ctx, 99)

			gomega.Expect(err).To(gomega.Equal(internal.ErrUserNotFound))
			gomega.Expect(sessions.endAllCalls).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("RevokeSession", func() {
		ginkgo.BeforeEach(func() {
			sessions.byID["sess-1"] = &session.Session{ID: "sess-1", UserID: 1, IsActive: true}
		})

		ginkgo.It("lets the owner revoke their own session", func() {
			err := service.RevokeSession(ctx, "sess-1", 1, true)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sessions.ended).To(gomega.Equal([]string{"sess-1"}))
		})

		ginkgo.It("refuses when the session belongs to someone else", func() {
			err := service.RevokeSession(ctx, "sess-1", 2, true)

			gomega.Expect(err).To(gomega.Equal(internal.ErrInsufficientPermissions))
			gomega.Expect(sessions.ended).To(gomega.BeEmpty())
		})

		ginkgo.It("lets an admin revoke any session when ownership is not required", func() {
			err := service.RevokeSession(ctx, "sess-1", 2, false)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sessions.ended).To(gomega.Equal([]string{"sess-1"}))
		})

		ginkgo.It("fails for an unknown session", func() {
			err := service.RevokeSession(ctx, "no-such", 1, true)

			gomega.Expect(err).To(gomega.Equal(internal.ErrSessionNotFound))
		})
	})
})

var _ = ginkgo.Describe("User projections", func() {
	ginkgo.It("Public never carries special permissions or the login IP", func() {
		u := &User{
			ID:                 4,
			Email:              "four@example.com",
			Name:               "Four",
			RoleName:           "viewer",
			SpecialPermissions: []string{rbac.PermAuditView},
			LastLoginIP:        "203.0.113.9",
			Permissions:        []string{rbac.PermTouristsView},
		}

		public := u.Public()

		gomega.Expect(public.Permissions).To(gomega.Equal([]string{rbac.PermTouristsView}))
		gomega.Expect(public.Email).To(gomega.Equal("four@example.com"))
	})

	ginkgo.It("round-trips special permissions through the datamodel", func() {
		u := &User{
			ID:                 4,
			Email:              "four@example.com",
			Name:               "Four",
			RoleName:           "viewer",
			SpecialPermissions: []string{rbac.PermAuditView, rbac.PermZonesView},
		}

		record := ToDataModel(u)
		gomega.Expect(record.SpecialPermissions).To(gomega.ContainSubstring(rbac.PermAuditView))

		back := FromDataModel(record)
		gomega.Expect(back.SpecialPermissions).To(gomega.Equal([]string{rbac.PermAuditView, rbac.PermZonesView}))
	})

	ginkgo.It("permission helpers answer membership", func() {
		u := &User{Permissions: []string{rbac.PermTouristsView, rbac.PermIncidentsView}}

		gomega.Expect(u.HasPermission(rbac.PermTouristsView)).To(gomega.BeTrue())
		gomega.Expect(u.HasPermission(rbac.PermRolesManage)).To(gomega.BeFalse())
		gomega.Expect(u.HasAnyPermission([]string{rbac.PermRolesManage, rbac.PermIncidentsView})).To(gomega.BeTrue())
		gomega.Expect(u.HasAnyPermission([]string{rbac.PermRolesManage})).To(gomega.BeFalse())
	})
})
