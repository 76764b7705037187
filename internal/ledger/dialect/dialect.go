// Package dialect abstracts the handful of SQL fragments the ledger core
// depends on (spec §6, §9 "Dialect abstraction"): row-lock clauses, the
// database clock, UUID generation, upsert syntax, and parameter
// placeholders. Porting the core to a different backing store means
// implementing this interface and nothing else in internal/ledger.
package dialect

// Dialect is the small trait the core depends on instead of hand-written
// SQL strings scattered through every component.
type Dialect interface {
	// ForUpdate returns the row-lock clause for LockWait.
	ForUpdate() string
	// ForUpdateNoWait returns the row-lock clause for LockNoWait.
	ForUpdateNoWait() string
	// ForUpdateSkipLocked returns the row-lock clause used by best-effort
	// sweepers so live traffic is never blocked.
	ForUpdateSkipLocked() string
	// Now returns a SQL expression for the database clock.
	Now() string
	// GenerateUUID returns a SQL expression that generates a UUID server-side.
	GenerateUUID() string
	// OnConflictDoUpdate returns an upsert clause for the given conflict
	// columns, setting each column in sets to its excluded value.
	OnConflictDoUpdate(conflictCols []string, sets []string) string
	// Placeholder returns the positional parameter marker for position i (1-based).
	Placeholder(i int) string
	// CountAsInt wraps a COUNT(...) expression so the driver returns an int64.
	CountAsInt(expr string) string
	// Interval returns a SQL interval literal of the given number of seconds.
	Interval(seconds int) string
}
