package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyTxOptions(t *testing.T) {
	assert.Equal(t, ReadCommitted, ApplyTxOptions(nil).Isolation)
	assert.Equal(t, RepeatableRead, ApplyTxOptions([]TxOption{nil, WithIsolation(RepeatableRead)}).Isolation)
	assert.Equal(t, "repeatable read", RepeatableRead.String())
}
