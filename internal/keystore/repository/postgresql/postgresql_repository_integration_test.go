package postgresql

import (
	"testing"

	"github.com/allisson/topogate/internal/database"
	"github.com/allisson/topogate/internal/testutil"
)

func TestRepository_PostgresIntegration(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	testutil.RunKeystoreRepositoryContract(t, NewRepository(db, database.NewTxManager(db)))
}
