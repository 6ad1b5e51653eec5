package migration

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRunCreatesSchemaAndIsIdempotent(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Run(conn))
	require.NoError(t, Run(conn))

	for _, table := range []string{"principals", "daily_usage", "activity_logs", "payment_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunRejectsUnknownDialect(t *testing.T) {
	_, _, err := driverFor(nil, "oracle")
	assert.Error(t, err)
}
