package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/yatrisafe/tourist-safety/internal/audit"
)

func TestSession(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Session Module Suite")
}

// In-memory repository double. Deactivate mirrors the real repository's
// row-change semantics so idempotency is observable.
type mockRepo struct {
	sessions map[string]*Session
	err      error

	activityUpdates []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{sessions: make(map[string]*Session)}
}

func (m *mockRepo) Create(ctx context.Context, sess *Session) error {
	if m.err != nil {
		return m.err
	}
	copied := *sess
	m.sessions[sess.ID] = &copied
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (m *mockRepo) GetByRefreshToken(ctx context.Context, token string) (*Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, sess := range m.sessions {
		if sess.RefreshToken == token {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) UpdateTokenHash(ctx context.Context, id, tokenHash string) error {
	if sess, ok := m.sessions[id]; ok {
		sess.TokenHash = tokenHash
	}
	return nil
}

func (m *mockRepo) UpdateRefreshToken(ctx context.Context, id, token string) error {
	if m.err != nil {
		return m.err
	}
	if sess, ok := m.sessions[id]; ok && sess.IsActive {
		sess.RefreshToken = token
	}
	return nil
}

func (m *mockRepo) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	m.activityUpdates = append(m.activityUpdates, id)
	if sess, ok := m.sessions[id]; ok && sess.IsActive {
		sess.LastActivity = at
	}
	return nil
}

func (m *mockRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	sess, ok := m.sessions[id]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	return true, nil
}

func (m *mockRepo) DeactivateAllForUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) ListActive(ctx context.Context, userID int64, now time.Time) ([]*Session, error) {
	var out []*Session
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.IsActive && sess.ExpiresAt.After(now) {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Session, error) {
	var out []*Session
	for _, sess := range m.sessions {
		if sess.IsActive && !sess.ExpiresAt.After(now) {
			copied := *sess
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Record(ctx context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

var _ = ginkgo.Describe("SessionService", func() {
	var (
		service *Service
		repo    *mockRepo
		auditor *recordingAuditor
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepo()
		auditor = &recordingAuditor{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, auditor, time.Hour, logger)
	})

	ginkgo.Describe("Create", func() {
		ginkgo.It("commits a fully populated session", func() {
			meta := DeviceMeta{Device: "Pixel 8", Platform: "android", IPAddress: "203.0.113.5"}

			sess, err := service.Create(ctx, 7, meta)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sess.ID).ToNot(gomega.BeEmpty())
			gomega.Expect(sess.UserID).To(gomega.Equal(int64(7)))
			gomega.Expect(sess.RefreshToken).ToNot(gomega.BeEmpty())
			gomega.Expect(sess.IsActive).To(gomega.BeTrue())
			gomega.Expect(sess.ExpiresAt).To(gomega.BeTemporally("~", time.Now().Add(time.Hour), time.Minute))

			stored, err := repo.GetByID(ctx, sess.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored).ToNot(gomega.BeNil())
			gomega.Expect(stored.Device).To(gomega.Equal("Pixel 8"))
		})

		ginkgo.It("generates a distinct refresh token per session", func() {
			first, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			second, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(first.RefreshToken).ToNot(gomega.Equal(second.RefreshToken))
			gomega.Expect(first.ID).ToNot(gomega.Equal(second.ID))
		})

		ginkgo.It("leaves nothing behind when the write fails", func() {
			repo.err = errors.New("db down")

			sess, err := service.Create(ctx, 7, DeviceMeta{})

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(sess).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("BindAccessToken", func() {
		ginkgo.It("stores the token digest, never the token", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			err = service.BindAccessToken(ctx, sess.ID, "the-raw-access-token")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored, _ := repo.GetByID(ctx, sess.ID)
			gomega.Expect(stored.TokenHash).To(gomega.Equal(HashToken("the-raw-access-token")))
			gomega.Expect(stored.TokenHash).ToNot(gomega.ContainSubstring("the-raw-access-token"))
		})
	})

	ginkgo.Describe("Touch", func() {
		ginkgo.It("bumps last_activity but never the expiry", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			originalExpiry := sess.ExpiresAt

			time.Sleep(5 * time.Millisecond)
			err = service.Touch(ctx, sess.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored, _ := repo.GetByID(ctx, sess.ID)
			gomega.Expect(stored.LastActivity.After(sess.LastActivity)).To(gomega.BeTrue())
			gomega.Expect(stored.ExpiresAt).To(gomega.BeTemporally("==", originalExpiry))
		})
	})

	ginkgo.Describe("End", func() {
		ginkgo.It("deactivates the session and audits once", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			err = service.End(ctx, sess.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored, _ := repo.GetByID(ctx, sess.ID)
			gomega.Expect(stored.IsActive).To(gomega.BeFalse())
			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
			gomega.Expect(auditor.entries[0].Action).To(gomega.Equal(audit.ActionSessionEnded))
		})

		ginkgo.It("is idempotent: a second End changes nothing and audits nothing", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(service.End(ctx, sess.ID)).To(gomega.Succeed())
			gomega.Expect(service.End(ctx, sess.ID)).To(gomega.Succeed())

			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
		})

		ginkgo.It("ending an unknown session is a no-op", func() {
			gomega.Expect(service.End(ctx, "no-such-session")).To(gomega.Succeed())
			gomega.Expect(auditor.entries).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("EndAllForUser", func() {
		ginkgo.It("revokes every active session the user has and only theirs", func() {
			_, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			other, err := service.Create(ctx, 8, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			count, err := service.EndAllForUser(ctx, 7)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(2)))
			stored, _ := repo.GetByID(ctx, other.ID)
			gomega.Expect(stored.IsActive).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("Validate", func() {
		ginkgo.It("accepts an active unexpired session", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, valid, err := service.Validate(ctx, sess.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeTrue())
		})

		ginkgo.It("rejects an ended session", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(service.End(ctx, sess.ID)).To(gomega.Succeed())

			_, valid, err := service.Validate(ctx, sess.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})

		ginkgo.It("rejects a session past its absolute expiry even while active", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			repo.sessions[sess.ID].ExpiresAt = time.Now().Add(-time.Minute)

			_, valid, err := service.Validate(ctx, sess.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})

		ginkgo.It("rejects an unknown session id", func() {
			sess, valid, err := service.Validate(ctx, "no-such-session")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
			gomega.Expect(sess).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("ValidateRefresh", func() {
		ginkgo.It("resolves an active session by its refresh token", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			found, valid, err := service.ValidateRefresh(ctx, sess.RefreshToken)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeTrue())
			gomega.Expect(found.ID).To(gomega.Equal(sess.ID))
		})

		ginkgo.It("rejects the refresh token of an ended session", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(service.End(ctx, sess.ID)).To(gomega.Succeed())

			_, valid, err := service.ValidateRefresh(ctx, sess.RefreshToken)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})

		ginkgo.It("rejects the refresh token of a session past its absolute expiry", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			repo.sessions[sess.ID].ExpiresAt = time.Now().Add(-time.Minute)

			_, valid, err := service.ValidateRefresh(ctx, sess.RefreshToken)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})

		ginkgo.It("rejects an unknown refresh token", func() {
			sess, valid, err := service.ValidateRefresh(ctx, "no-such-token")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
			gomega.Expect(sess).To(gomega.BeNil())
		})

		ginkgo.It("rejects an empty refresh token without touching the store", func() {
			repo.err = errors.New("should not be queried")

			_, valid, err := service.ValidateRefresh(ctx, "")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("RotateRefreshToken", func() {
		ginkgo.It("replaces the stored token so the old one no longer resolves", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			oldToken := sess.RefreshToken

			rotated, err := service.RotateRefreshToken(ctx, sess.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rotated).ToNot(gomega.BeEmpty())
			gomega.Expect(rotated).ToNot(gomega.Equal(oldToken))
			gomega.Expect(repo.sessions[sess.ID].RefreshToken).To(gomega.Equal(rotated))

			_, valid, err := service.ValidateRefresh(ctx, oldToken)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(valid).To(gomega.BeFalse())
		})

		ginkgo.It("surfaces a store failure", func() {
			sess, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			repo.err = errors.New("db down")

			_, err = service.RotateRefreshToken(ctx, sess.ID)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("SweepExpired", func() {
		ginkgo.It("deactivates expired sessions and audits each one", func() {
			expired, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			repo.sessions[expired.ID].ExpiresAt = time.Now().Add(-time.Minute)

			live, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			swept, err := service.SweepExpired(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(swept).To(gomega.Equal(1))
			gomega.Expect(repo.sessions[expired.ID].IsActive).To(gomega.BeFalse())
			gomega.Expect(repo.sessions[live.ID].IsActive).To(gomega.BeTrue())
			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
			gomega.Expect(auditor.entries[0].Action).To(gomega.Equal(audit.ActionSessionExpired))
		})

		ginkgo.It("a second sweep with no new expirations sweeps nothing", func() {
			expired, err := service.Create(ctx, 7, DeviceMeta{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			repo.sessions[expired.ID].ExpiresAt = time.Now().Add(-time.Minute)

			first, err := service.SweepExpired(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(first).To(gomega.Equal(1))

			second, err := service.SweepExpired(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(second).To(gomega.Equal(0))
			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
		})
	})
})

var _ = ginkgo.Describe("Session helpers", func() {
	ginkgo.It("Expired treats exactly-now as expired", func() {
		now := time.Now()
		sess := &Session{ExpiresAt: now}

		gomega.Expect(sess.Expired(now)).To(gomega.BeTrue())
		gomega.Expect(sess.Expired(now.Add(-time.Second))).To(gomega.BeFalse())
	})

	ginkgo.It("HashToken is deterministic and never echoes the input", func() {
		digest := HashToken("some-access-token")

		gomega.Expect(digest).To(gomega.Equal(HashToken("some-access-token")))
		gomega.Expect(digest).ToNot(gomega.ContainSubstring("some-access-token"))
		gomega.Expect(digest).To(gomega.HaveLen(64))
	})
})
