package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qca-lab/qca-sim/sim/catalog"
)

// catalogs returns the backends available in this environment. Postgres
// runs only when QCASIM_TEST_POSTGRES_DSN points at a scratch database.
func catalogs(t *testing.T) map[string]catalog.Catalog {
	t.Helper()
	ctx := context.Background()
	out := map[string]catalog.Catalog{}
	lite, err := catalog.OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	out["sqlite"] = lite
	if dsn := os.Getenv("QCASIM_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := catalog.OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestCatalog_BeginFinishGet(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a run that has started
			id := uuid.New()
			started := time.Now().UTC().Truncate(time.Millisecond)
			require.NoError(t, c.Begin(ctx, catalog.RunRecord{ID: id, ModelID: "icha", StoreKey: "runs/" + id.String() + ".qcs", StartedAt: started}))

			rec, err := c.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, catalog.StatusRunning, rec.Status)
			assert.Nil(t, rec.FinishedAt)
			assert.True(t, started.Equal(rec.StartedAt))

			// WHEN it finishes
			finished := started.Add(1500 * time.Millisecond)
			require.NoError(t, c.Finish(ctx, id, catalog.Outcome{
				Status: catalog.StatusCompleted, NumSamples: 300, StoredCells: 2, FinishedAt: finished,
			}))

			// THEN the record carries the outcome
			rec, err = c.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, catalog.StatusCompleted, rec.Status)
			assert.Equal(t, 300, rec.NumSamples)
			assert.Equal(t, 2, rec.StoredCells)
			require.NotNil(t, rec.FinishedAt)
			assert.True(t, finished.Equal(*rec.FinishedAt))
		})
	}
}

func TestCatalog_FailedRunKeepsError(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			require.NoError(t, c.Begin(ctx, catalog.RunRecord{ID: id, ModelID: "full_basis", StoreKey: "k", StartedAt: time.Now()}))
			require.NoError(t, c.Finish(ctx, id, catalog.Outcome{
				Status: catalog.StatusFailed, ErrorKind: "settings_parse", Error: "bad json", FinishedAt: time.Now(),
			}))
			rec, err := c.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, catalog.StatusFailed, rec.Status)
			assert.Equal(t, "settings_parse", rec.ErrorKind)
			assert.Equal(t, "bad json", rec.Error)
		})
	}
}

func TestCatalog_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			var ids []uuid.UUID
			for i := 0; i < 3; i++ {
				id := uuid.New()
				ids = append(ids, id)
				require.NoError(t, c.Begin(ctx, catalog.RunRecord{ID: id, ModelID: "icha", StoreKey: "k", StartedAt: base.Add(time.Duration(i) * time.Minute)}))
			}
			recs, err := c.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, ids[2], recs[0].ID)
			assert.Equal(t, ids[1], recs[1].ID)
		})
	}
}

func TestCatalog_UnknownRun(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Get(ctx, uuid.New())
			assert.ErrorIs(t, err, catalog.ErrNotFound)
			err = c.Finish(ctx, uuid.New(), catalog.Outcome{Status: catalog.StatusCompleted, FinishedAt: time.Now()})
			assert.ErrorIs(t, err, catalog.ErrNotFound)
		})
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	c, err := catalog.Open(ctx, catalog.Config{Driver: catalog.DriverNone})
	require.NoError(t, err)
	assert.IsType(t, catalog.Nop{}, c)
	recs, err := c.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	c, err = catalog.Open(ctx, catalog.Config{DSN: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = catalog.Open(ctx, catalog.Config{Driver: "mongo"})
	assert.Error(t, err)
}
