package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatementsCreateTablesBeforeIndexes(t *testing.T) {
	r := NewRunner()
	assert.Equal(t, "1.0.0", r.Version())

	stmts := r.Statements()
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS audit_rounds")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS audit_round_results")
	assert.Contains(t, stmts[1], "UNIQUE (audit_id, assertion_id, round)")
	for _, idx := range strings.Split(stmts[2], ";") {
		assert.Contains(t, idx, "ON audit_round_results")
	}
}
