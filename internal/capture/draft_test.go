package capture

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/casafin/expense-capture/internal/backend"
	"github.com/casafin/expense-capture/internal/extraction"
)

var _ = Describe("Draft", func() {
	Describe("newDraftFromExtraction", func() {
		It("should stage an expense with the merchant as description", func() {
			draft := newDraftFromExtraction(cafeLunaResult(), "abc.jpg")

			Expect(draft.Type).To(Equal(backend.TypeExpense))
			Expect(draft.Amount).To(Equal(decimal.NewFromFloat(125.50)))
			Expect(draft.Currency).To(Equal("MXN"))
			Expect(draft.Description).To(Equal("Cafe Luna"))
			Expect(draft.Category).To(Equal(extraction.CategoryFood))
			Expect(draft.ImagePath).To(Equal("abc.jpg"))
		})

		It("should assign fresh identifiers per draft", func() {
			a := newDraftFromExtraction(cafeLunaResult(), "")
			b := newDraftFromExtraction(cafeLunaResult(), "")

			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(a.SyncID).NotTo(Equal(b.SyncID))
		})
	})

	Describe("Validate", func() {
		var draft *Draft

		BeforeEach(func() {
			draft = testDraft()
		})

		It("should accept a well-formed draft", func() {
			Expect(draft.Validate()).To(Succeed())
		})

		It("should reject a zero amount", func() {
			draft.Amount = decimal.Zero
			Expect(draft.Validate()).To(MatchError(ContainSubstring("amount")))
		})

		It("should reject a negative amount", func() {
			draft.Amount = decimal.NewFromFloat(-10)
			Expect(draft.Validate()).To(MatchError(ContainSubstring("amount")))
		})

		It("should reject an unknown transaction type", func() {
			draft.Type = "TRANSFER"
			Expect(draft.Validate()).To(MatchError(ContainSubstring("type")))
		})

		It("should reject a malformed currency code", func() {
			draft.Currency = "PESOS"
			Expect(draft.Validate()).To(MatchError(ContainSubstring("currency")))
		})

		It("should reject a zero date", func() {
			draft.Date = time.Time{}
			Expect(draft.Validate()).To(MatchError(ContainSubstring("date")))
		})
	})

	Describe("apply", func() {
		It("should leave unset fields untouched", func() {
			draft := testDraft()
			invoiced := true
			draft.apply(DraftUpdate{IsInvoiced: &invoiced})

			Expect(draft.IsInvoiced).To(BeTrue())
			Expect(draft.Amount).To(Equal(decimal.NewFromFloat(125.50)))
			Expect(draft.Description).To(Equal("Cafe Luna"))
		})
	})

	Describe("toCreate", func() {
		It("should carry the sync ID onto the wire", func() {
			draft := testDraft()
			create := draft.toCreate()

			Expect(create.SyncID).To(Equal(draft.SyncID))
			Expect(create.AmountOriginal).To(Equal(125.50))
			Expect(create.CurrencyCode).To(Equal("MXN"))
			Expect(create.Type).To(Equal(backend.TypeExpense))
		})
	})
})
