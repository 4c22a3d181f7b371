// Package billing provides the billing transaction aggregate.
//
// A BillingTransaction is a realized receivable or payable, usually produced
// from a due payment schedule item. Its status moves through a closed
// transition table:
//
//	pending        -> claimed, cancelled, disputed
//	claimed        -> partially_paid, paid, overdue, cancelled, disputed
//	partially_paid -> paid, overdue, cancelled, disputed
//	overdue        -> paid, cancelled, disputed
//	disputed       -> paid, cancelled, refunded
//	paid           -> refunded, disputed
//	cancelled, refunded: terminal
//
// Every operation is pure: it returns an Outcome holding the next state and
// the history record describing it, and leaves the receiver untouched. The
// application layer persists both in one database transaction.
package billing
