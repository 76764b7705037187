package dialect

import (
	"fmt"
	"strings"
)

// Postgres implements Dialect for jackc/pgx, grounded on the raw SQL the
// teacher writes directly against Postgres in
// internal/infrastructure/database/postgres/postgres.go (FOR UPDATE,
// parameterized $N placeholders, ON CONFLICT upserts).
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) ForUpdate() string         { return "FOR UPDATE" }
func (Postgres) ForUpdateNoWait() string   { return "FOR UPDATE NOWAIT" }
func (Postgres) ForUpdateSkipLocked() string { return "FOR UPDATE SKIP LOCKED" }
func (Postgres) Now() string               { return "now()" }
func (Postgres) GenerateUUID() string      { return "gen_random_uuid()" }

func (Postgres) OnConflictDoUpdate(conflictCols []string, sets []string) string {
	assignments := make([]string, len(sets))
	for i, col := range sets {
		assignments[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictCols, ", "), strings.Join(assignments, ", "))
}

func (Postgres) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (Postgres) CountAsInt(expr string) string { return fmt.Sprintf("COUNT(%s)::bigint", expr) }

func (Postgres) Interval(seconds int) string {
	return fmt.Sprintf("INTERVAL '%d seconds'", seconds)
}
