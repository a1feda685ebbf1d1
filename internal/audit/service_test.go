package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestAudit(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Audit Module Suite")
}

type memoryAuditRepo struct {
	entries    []*Entry
	err        error
	lastFilter Filter
}

func (m *memoryAuditRepo) Append(ctx context.Context, entry *Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	m.lastFilter = filter
	return m.entries, nil
}

func (m *memoryAuditRepo) CountByAction(ctx context.Context, userID int64, action string) (int64, error) {
	var count int64
	for _, e := range m.entries {
		if e.Action == action && e.UserID != nil && *e.UserID == userID {
			count++
		}
	}
	return count, nil
}

var _ = ginkgo.Describe("AuditService", func() {
	var (
		service *Service
		repo    *memoryAuditRepo
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = &memoryAuditRepo{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, logger)
	})

	ginkgo.Describe("Record", func() {
		ginkgo.It("appends an entry and fills defaults", func() {
			userID := int64(5)
			err := service.Record(ctx, Entry{
				UserID: &userID,
				Action: ActionUserLogin,
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.entries).To(gomega.HaveLen(1))
			gomega.Expect(repo.entries[0].Status).To(gomega.Equal(StatusSuccess))
			gomega.Expect(repo.entries[0].CreatedAt).To(gomega.BeTemporally("~", time.Now(), time.Second))
		})

		ginkgo.It("keeps an explicit status and timestamp", func() {
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			err := service.Record(ctx, Entry{
				Action:    ActionLoginFailed,
				Status:    StatusFailure,
				CreatedAt: at,
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.entries[0].Status).To(gomega.Equal(StatusFailure))
			gomega.Expect(repo.entries[0].CreatedAt).To(gomega.Equal(at))
		})

		ginkgo.It("rejects an entry without an action", func() {
			err := service.Record(ctx, Entry{Status: StatusSuccess})

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(repo.entries).To(gomega.BeEmpty())
		})

		ginkgo.It("surfaces an append failure to the caller", func() {
			repo.err = errors.New("disk full")

			err := service.Record(ctx, Entry{Action: ActionUserLogin})

			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("List", func() {
		ginkgo.It("defaults the page size", func() {
			_, err := service.List(ctx, Filter{})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.lastFilter.Limit).To(gomega.Equal(50))
		})

		ginkgo.It("caps the page size", func() {
			_, err := service.List(ctx, Filter{Limit: 10000})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(repo.lastFilter.Limit).To(gomega.Equal(200))
		})
	})

	ginkgo.Describe("CountByAction", func() {
		ginkgo.It("counts entries for a user and action pair", func() {
			userID := int64(5)
			other := int64(6)
			gomega.Expect(service.Record(ctx, Entry{UserID: &userID, Action: ActionLoginFailed})).To(gomega.Succeed())
			gomega.Expect(service.Record(ctx, Entry{UserID: &userID, Action: ActionLoginFailed})).To(gomega.Succeed())
			gomega.Expect(service.Record(ctx, Entry{UserID: &other, Action: ActionLoginFailed})).To(gomega.Succeed())

			count, err := service.CountByAction(ctx, 5, ActionLoginFailed)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(2)))
		})
	})
})

var _ = ginkgo.Describe("Snapshot", func() {
	ginkgo.It("serializes a value to JSON", func() {
		out := Snapshot(map[string]interface{}{"email": "a@b.c"})

		gomega.Expect(out).To(gomega.MatchJSON(`{"email":"a@b.c"}`))
	})

	ginkgo.It("degrades to empty on nil and unmarshalable values", func() {
		gomega.Expect(Snapshot(nil)).To(gomega.BeEmpty())
		gomega.Expect(Snapshot(make(chan int))).To(gomega.BeEmpty())
	})
})
