/*
balance.go - Balance projection from entries

PURPOSE:
  Computes a user's balance from their entries. This is the central
  calculation that answers "how much can this user spend?"

KEY INSIGHT:
  The balance is a pure fold over AmountCents. Addition is commutative,
  so ordering does not matter for the total - only for display/history.
  No entry is ever excluded from the sum regardless of Kind; compensating
  entries participate identically to originals.

GUARANTEE:
  The result is always exactly reproducible from the stored entry set.
  There is no separately maintained balance counter that could drift.

FLOOR:
  The balance may go negative, but only down to a fixed floor (the user
  owes the tab at most 5 EUR). The floor is enforced at purchase time,
  not here - the projection just reports the truth.

SEE ALSO:
  - ledger.go: Ledger.Balance uses this fold
  - purchase/coordinator.go: Floor enforcement
*/
package ledger

// =============================================================================
// BALANCE PROJECTION - Pure fold over entries
// =============================================================================

// ComputeBalance folds AmountCents over the given entries.
// Empty entry set yields 0.
func ComputeBalance(entries []Entry) int64 {
	var balance int64
	for _, e := range entries {
		balance += e.AmountCents
	}
	return balance
}

// BalanceSummary breaks a user's history down for display. Like the balance
// itself, every component is derived from entries on each call.
type BalanceSummary struct {
	BalanceCents  int64
	TotalSpent    int64 // Sum of negative entries, as a positive number
	TotalCredited int64 // Sum of positive entries
	EntryCount    int
}

// Summarize computes a BalanceSummary from the given entries.
func Summarize(entries []Entry) BalanceSummary {
	s := BalanceSummary{EntryCount: len(entries)}
	for _, e := range entries {
		s.BalanceCents += e.AmountCents
		if e.AmountCents < 0 {
			s.TotalSpent -= e.AmountCents
		} else {
			s.TotalCredited += e.AmountCents
		}
	}
	return s
}
