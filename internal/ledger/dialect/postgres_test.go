package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresLockClauses(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, "FOR UPDATE", d.ForUpdate())
	assert.Equal(t, "FOR UPDATE NOWAIT", d.ForUpdateNoWait())
	assert.Equal(t, "FOR UPDATE SKIP LOCKED", d.ForUpdateSkipLocked())
}

func TestPostgresPlaceholderIsOneIndexed(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, "$1", d.Placeholder(1))
	assert.Equal(t, "$7", d.Placeholder(7))
}

func TestPostgresOnConflictDoUpdate(t *testing.T) {
	d := Postgres{}
	clause := d.OnConflictDoUpdate([]string{"account_id", "currency"}, []string{"balance", "version"})
	assert.Equal(t, "ON CONFLICT (account_id, currency) DO UPDATE SET balance = EXCLUDED.balance, version = EXCLUDED.version", clause)
}

func TestPostgresCountAsInt(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, "COUNT(*)::bigint", d.CountAsInt("*"))
}

func TestPostgresInterval(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, "INTERVAL '86400 seconds'", d.Interval(86400))
}

func TestPostgresImplementsDialect(t *testing.T) {
	var _ Dialect = Postgres{}
}
