package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"ledgercore/internal/ledger/ledgererr"
)

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, classify(nil))
}

func TestClassifyContextErrorsBecomeTimeout(t *testing.T) {
	assert.Equal(t, ledgererr.Timeout, ledgererr.CodeOf(classify(context.DeadlineExceeded)))
	assert.Equal(t, ledgererr.Timeout, ledgererr.CodeOf(classify(context.Canceled)))
}

func TestClassifyNoRowsBecomesNotFound(t *testing.T) {
	assert.Equal(t, ledgererr.NotFound, ledgererr.CodeOf(classify(pgx.ErrNoRows)))
}

func TestClassifyPgErrorCodes(t *testing.T) {
	cases := map[string]ledgererr.Code{
		"55P03": ledgererr.ResourceBusy,
		"40001": ledgererr.ResourceBusy,
		"40P01": ledgererr.ResourceBusy,
		"23505": ledgererr.Internal, // unmapped code falls through to internal
	}
	for code, want := range cases {
		err := classify(&pgconn.PgError{Code: code})
		assert.Equal(t, want, ledgererr.CodeOf(err), "pg code %s", code)
	}
}

func TestClassifyUnknownErrorBecomesInternal(t *testing.T) {
	assert.Equal(t, ledgererr.Internal, ledgererr.CodeOf(classify(errors.New("disk full"))))
}
