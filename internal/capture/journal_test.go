package capture

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltJournal", func() {
	var (
		journal *BoltJournal
		dbPath  string
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "journal-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		dbPath = filepath.Join(dir, "pending.db")
		journal, err = NewBoltJournal(dbPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { journal.Close() })
	})

	It("should start empty", func() {
		entries, err := journal.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("should round-trip an entry", func() {
		txID := uuid.New()
		added := &PendingAttachment{
			TransactionID: txID,
			ImagePath:     "abc.jpg",
			Filename:      "receipt.jpg",
			ContentType:   "image/jpeg",
			LastError:     "storage unavailable",
			CreatedAt:     time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
		}
		Expect(journal.Add(added)).To(Succeed())

		entries, err := journal.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0]).To(Equal(added))
	})

	It("should overwrite on re-add for the same transaction", func() {
		txID := uuid.New()
		entry := &PendingAttachment{TransactionID: txID, LastError: "first"}
		Expect(journal.Add(entry)).To(Succeed())

		entry.LastError = "second"
		Expect(journal.Add(entry)).To(Succeed())

		entries, err := journal.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].LastError).To(Equal("second"))
	})

	It("should remove entries by transaction ID", func() {
		keep := &PendingAttachment{TransactionID: uuid.New()}
		drop := &PendingAttachment{TransactionID: uuid.New()}
		Expect(journal.Add(keep)).To(Succeed())
		Expect(journal.Add(drop)).To(Succeed())

		Expect(journal.Remove(drop.TransactionID)).To(Succeed())

		entries, err := journal.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].TransactionID).To(Equal(keep.TransactionID))
	})

	It("should tolerate removing an unknown transaction", func() {
		Expect(journal.Remove(uuid.New())).To(Succeed())
	})

	It("should survive reopening", func() {
		entry := &PendingAttachment{TransactionID: uuid.New(), ImagePath: "x.jpg"}
		Expect(journal.Add(entry)).To(Succeed())
		Expect(journal.Close()).To(Succeed())

		reopened, err := NewBoltJournal(dbPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { reopened.Close() })

		entries, err := reopened.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ImagePath).To(Equal("x.jpg"))
	})
})
