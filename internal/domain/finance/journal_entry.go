package finance

import (
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalEntryStatus is the posting state of an entry
type JournalEntryStatus string

const (
	JournalEntryStatusPosted JournalEntryStatus = "POSTED"
)

// ReferenceType names the business document a journal entry accounts for
type ReferenceType string

const (
	ReferenceTypePayment    ReferenceType = "CUSTOMER_PAYMENT"
	ReferenceTypeReceivable ReferenceType = "ACCOUNT_RECEIVABLE"
	ReferenceTypeReversal   ReferenceType = "JOURNAL_REVERSAL"
)

// JournalLine is one side of a journal entry. Exactly one of Debit and
// Credit is positive.
type JournalLine struct {
	ID          uuid.UUID
	LineNumber  int
	AccountID   uuid.UUID
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// DebitLine builds a debit line
func DebitLine(accountID uuid.UUID, code string, amount decimal.Decimal, description string) JournalLine {
	return JournalLine{AccountID: accountID, AccountCode: code, Debit: amount, Credit: decimal.Zero, Description: description}
}

// CreditLine builds a credit line
func CreditLine(accountID uuid.UUID, code string, amount decimal.Decimal, description string) JournalLine {
	return JournalLine{AccountID: accountID, AccountCode: code, Debit: decimal.Zero, Credit: amount, Description: description}
}

// JournalEntry is a balanced double-entry record. Posted entries are never
// changed; corrections are made with a reversing entry.
type JournalEntry struct {
	shared.BaseAggregateRoot
	EntryNumber     string
	EntryDate       time.Time
	Description     string
	ReferenceType   ReferenceType
	ReferenceID     uuid.UUID
	Status          JournalEntryStatus
	CreatedBy       uuid.UUID
	ReversesEntryID *uuid.UUID
	Lines           []JournalLine
}

// JournalReference identifies the source document of an entry
type JournalReference struct {
	Type ReferenceType
	ID   uuid.UUID
}

// NewJournalEntry creates a posted entry after checking that it balances
func NewJournalEntry(
	entryNumber string,
	entryDate time.Time,
	description string,
	ref JournalReference,
	lines []JournalLine,
	createdBy uuid.UUID,
	now time.Time,
) (*JournalEntry, error) {
	if entryNumber == "" {
		return nil, shared.NewDomainError("INVALID_ENTRY_NUMBER", "Entry number cannot be empty")
	}
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}

	entry := &JournalEntry{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		EntryNumber:       entryNumber,
		EntryDate:         entryDate,
		Description:       description,
		ReferenceType:     ref.Type,
		ReferenceID:       ref.ID,
		Status:            JournalEntryStatusPosted,
		CreatedBy:         createdBy,
		Lines:             make([]JournalLine, len(lines)),
	}
	for i, l := range lines {
		l.ID = uuid.New()
		l.LineNumber = i + 1
		entry.Lines[i] = l
	}
	return entry, nil
}

// ValidateLines checks line shape and that total debits equal total credits
func ValidateLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return shared.NewDomainError("INVALID_LINES", "Journal entry needs at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for i, l := range lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return shared.NewDomainError("INVALID_LINE", fmt.Sprintf("Line %d has a negative amount", i+1))
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return shared.NewDomainError("INVALID_LINE", fmt.Sprintf("Line %d must have exactly one of debit or credit", i+1))
		}
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return &UnbalancedJournalEntryError{Debit: debit, Credit: credit}
	}
	return nil
}

// TotalDebit sums debit lines
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums credit lines
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// IsBalanced reports Σdebit == Σcredit
func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Equal(e.TotalCredit())
}

// IsReversal reports whether this entry offsets another one
func (e *JournalEntry) IsReversal() bool {
	return e.ReversesEntryID != nil
}

// NewReversal builds the offsetting entry for e with every line's sides
// swapped. e itself is left untouched.
func (e *JournalEntry) NewReversal(entryNumber, reason string, entryDate time.Time, createdBy uuid.UUID, now time.Time) (*JournalEntry, error) {
	if e.IsReversal() {
		return nil, shared.NewDomainError("INVALID_STATE", "A reversing entry cannot itself be reversed")
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Reversal reason is required")
	}
	lines := make([]JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = JournalLine{
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: l.Description,
		}
	}
	rev, err := NewJournalEntry(
		entryNumber,
		entryDate,
		fmt.Sprintf("Reversal of %s: %s", e.EntryNumber, reason),
		JournalReference{Type: ReferenceTypeReversal, ID: e.ID},
		lines,
		createdBy,
		now,
	)
	if err != nil {
		return nil, err
	}
	id := e.ID
	rev.ReversesEntryID = &id
	return rev, nil
}

// FormatEntryNumber renders a counter value as JE-NNNNNN
func FormatEntryNumber(n int64) string {
	return fmt.Sprintf("JE-%06d", n)
}

// FormatReceivableNumber renders a counter value as AR-NNNNNNNN
func FormatReceivableNumber(n int64) string {
	return fmt.Sprintf("AR-%08d", n)
}
