package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/core/events"
)

func TestSecurity(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Security Module Suite")
}

type memoryStateRepo struct {
	mu     sync.Mutex
	states map[int64]*State
	err    error
}

func newMemoryStateRepo() *memoryStateRepo {
	return &memoryStateRepo{states: make(map[int64]*State)}
}

func (m *memoryStateRepo) GetByUserID(ctx context.Context, userID int64) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	state, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (m *memoryStateRepo) Save(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	copied := *state
	m.states[state.UserID] = &copied
	return nil
}

type captureAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *captureAuditor) Record(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *captureAuditor) countByAction(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, e := range a.entries {
		if e.Action == action {
			count++
		}
	}
	return count
}

type captureBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *captureBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

var _ = ginkgo.Describe("Guard", func() {
	var (
		guard   *Guard
		repo    *memoryStateRepo
		auditor *captureAuditor
		bus     *captureBus
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMemoryStateRepo()
		auditor = &captureAuditor{}
		bus = &captureBus{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		guard = NewGuard(repo, auditor, bus, Config{
			LockoutThreshold:   3,
			LockoutDuration:    10 * time.Minute,
			ResetTokenDuration: time.Hour,
		}, logger)
	})

	ginkgo.Describe("RecordFailedAttempt", func() {
		ginkgo.It("does not lock below the threshold", func() {
			locked, err := guard.RecordFailedAttempt(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeFalse())

			locked, err = guard.RecordFailedAttempt(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeFalse())

			isLocked, err := guard.IsLocked(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(isLocked).To(gomega.BeFalse())
		})

		ginkgo.It("locks on reaching the threshold and audits it", func() {
			for i := 0; i < 2; i++ {
				_, err := guard.RecordFailedAttempt(ctx, 1)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}

			locked, err := guard.RecordFailedAttempt(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeTrue())

			isLocked, err := guard.IsLocked(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(isLocked).To(gomega.BeTrue())

			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
			gomega.Expect(auditor.entries[0].Action).To(gomega.Equal(audit.ActionAccountLocked))
			gomega.Expect(bus.published).To(gomega.HaveLen(1))
			gomega.Expect(bus.published[0].EventType()).To(gomega.Equal(events.EventAccountLocked))
		})

		ginkgo.It("never under-counts concurrent failures for one account", func() {
			const attempts = 8

			var wg sync.WaitGroup
			errs := make([]error, attempts)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = guard.RecordFailedAttempt(ctx, 1)
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}
			gomega.Expect(repo.states[1].FailedAttempts).To(gomega.Equal(attempts))

			isLocked, err := guard.IsLocked(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(isLocked).To(gomega.BeTrue())

			// the whole burst produces one lock transition
			gomega.Expect(auditor.countByAction(audit.ActionAccountLocked)).To(gomega.Equal(1))
			gomega.Expect(bus.published).To(gomega.HaveLen(1))
		})

		ginkgo.It("tracks users independently", func() {
			for i := 0; i < 3; i++ {
				_, err := guard.RecordFailedAttempt(ctx, 1)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}

			otherLocked, err := guard.IsLocked(ctx, 2)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(otherLocked).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("IsLocked", func() {
		ginkgo.It("reports unlocked for a user with no state", func() {
			locked, err := guard.IsLocked(ctx, 99)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeFalse())
		})

		ginkgo.It("reports unlocked once the lockout window has passed", func() {
			past := time.Now().Add(-time.Minute)
			repo.states[1] = &State{UserID: 1, FailedAttempts: 3, LockedUntil: &past}

			locked, err := guard.IsLocked(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeFalse())
		})

		ginkgo.It("returns an error when the store is unavailable so callers fail closed", func() {
			repo.err = errors.New("db down")

			_, err := guard.IsLocked(ctx, 1)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("RecordSuccessfulLogin", func() {
		ginkgo.It("clears the counter and any lockout", func() {
			for i := 0; i < 3; i++ {
				_, err := guard.RecordFailedAttempt(ctx, 1)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}

			gomega.Expect(guard.RecordSuccessfulLogin(ctx, 1)).To(gomega.Succeed())

			locked, err := guard.IsLocked(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(locked).To(gomega.BeFalse())
			gomega.Expect(repo.states[1].FailedAttempts).To(gomega.Equal(0))
			gomega.Expect(repo.states[1].LockedUntil).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("reset tokens", func() {
		ginkgo.It("issues a token whose digest, not value, is stored", func() {
			token, err := guard.IssueResetToken(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(token).ToNot(gomega.BeEmpty())
			gomega.Expect(repo.states[1].ResetTokenHash).ToNot(gomega.Equal(token))
			gomega.Expect(repo.states[1].ResetTokenUsed).To(gomega.BeFalse())
			gomega.Expect(auditor.entries).To(gomega.HaveLen(1))
			gomega.Expect(auditor.entries[0].Action).To(gomega.Equal(audit.ActionPasswordResetRequested))
		})

		ginkgo.It("consumes a valid token exactly once", func() {
			token, err := guard.IssueResetToken(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(guard.ConsumeResetToken(ctx, 1, token)).To(gomega.Succeed())

			err = guard.ConsumeResetToken(ctx, 1, token)
			gomega.Expect(err).To(gomega.Equal(internal.ErrResetTokenInvalid))
		})

		ginkgo.It("rejects a wrong token and audits the failure", func() {
			_, err := guard.IssueResetToken(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			err = guard.ConsumeResetToken(ctx, 1, "not-the-token")

			gomega.Expect(err).To(gomega.Equal(internal.ErrResetTokenInvalid))
			last := auditor.entries[len(auditor.entries)-1]
			gomega.Expect(last.Action).To(gomega.Equal(audit.ActionPasswordResetFailed))
			gomega.Expect(last.Status).To(gomega.Equal(audit.StatusFailure))
		})

		ginkgo.It("rejects an expired token distinctly", func() {
			token, err := guard.IssueResetToken(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			past := time.Now().Add(-time.Minute)
			repo.states[1].ResetTokenExpiresAt = &past

			err = guard.ConsumeResetToken(ctx, 1, token)

			gomega.Expect(err).To(gomega.Equal(internal.ErrResetTokenExpired))
		})

		ginkgo.It("rejects consumption when no token was ever issued", func() {
			err := guard.ConsumeResetToken(ctx, 1, "anything")

			gomega.Expect(err).To(gomega.Equal(internal.ErrResetTokenInvalid))
		})

		ginkgo.It("a new token invalidates the previous one", func() {
			first, err := guard.IssueResetToken(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			second, err := guard.IssueResetToken(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(guard.ConsumeResetToken(ctx, 1, first)).To(gomega.Equal(internal.ErrResetTokenInvalid))
			gomega.Expect(guard.ConsumeResetToken(ctx, 1, second)).To(gomega.Succeed())
		})
	})

	ginkgo.Describe("defaults", func() {
		ginkgo.It("fills unset config fields with safe values", func() {
			cfg := Config{}.withDefaults()

			gomega.Expect(cfg.LockoutThreshold).To(gomega.Equal(5))
			gomega.Expect(cfg.LockoutDuration).To(gomega.Equal(15 * time.Minute))
			gomega.Expect(cfg.ResetTokenDuration).To(gomega.Equal(time.Hour))
		})
	})
})
