package settlement

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
)

// Position is one member's net balance. Positive means the member is owed
// money, negative means the member owes.
type Position struct {
	UserID uuid.UUID
	Name   string
	Amount decimal.Decimal
}

// Debt is a suggested payment from a debtor to a creditor.
type Debt struct {
	From     uuid.UUID       `json:"from"`
	FromName string          `json:"from_name"`
	To       uuid.UUID       `json:"to"`
	ToName   string          `json:"to_name"`
	Amount   decimal.Decimal `json:"amount"`
}

type party struct {
	id        uuid.UUID
	name      string
	remaining decimal.Decimal
}

// Simplify reduces positions to a list of payments with the greedy
// two-cursor sweep: largest creditor against largest debtor, transfer the
// smaller remainder, advance whichever side is settled. Balances within one
// cent of zero are ignored. Equal amounts keep the order of positions.
//
// The result has at most len(non-zero positions)-1 edges. It is not
// guaranteed to be the minimum possible number of payments.
func Simplify(positions []Position) []Debt {
	var creditors, debtors []party
	for _, p := range positions {
		switch {
		case p.Amount.GreaterThan(domain.Cent):
			creditors = append(creditors, party{id: p.UserID, name: p.Name, remaining: p.Amount})
		case p.Amount.LessThan(domain.Cent.Neg()):
			debtors = append(debtors, party{id: p.UserID, name: p.Name, remaining: p.Amount.Neg()})
		}
	}
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].remaining.GreaterThan(creditors[j].remaining)
	})
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].remaining.GreaterThan(debtors[j].remaining)
	})

	debts := []Debt{}
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c, d := &creditors[i], &debtors[j]
		amt := decimal.Min(c.remaining, d.remaining)
		if amt.GreaterThan(domain.Cent) {
			debts = append(debts, Debt{
				From:     d.id,
				FromName: d.name,
				To:       c.id,
				ToName:   c.name,
				Amount:   amt.Round(2),
			})
		}
		c.remaining = c.remaining.Sub(amt)
		d.remaining = d.remaining.Sub(amt)
		if c.remaining.LessThanOrEqual(domain.Cent) {
			i++
		}
		if d.remaining.LessThanOrEqual(domain.Cent) {
			j++
		}
	}
	return debts
}
