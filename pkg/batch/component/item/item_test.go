package item_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/stepguard/pkg/batch/component/item"
	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepguard/pkg/batch/test"
)

func TestListItemReader_ReadsUntilExhausted(t *testing.T) {
	ctx := context.Background()
	r := item.NewListItemReader("numbers", []int{1, 2, 3})
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))

	var got []int
	for {
		v, err := r.Read(ctx)
		if port.IsEndOfInput(err) {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	require.NoError(t, r.Close(ctx))
}

func TestListItemReader_ResumesFromExecutionContext(t *testing.T) {
	ctx := context.Background()
	r := item.NewListItemReader("numbers", []int{1, 2, 3, 4})
	ec := model.NewExecutionContext()

	require.NoError(t, r.Open(ctx, ec))
	_, err := r.Read(ctx)
	require.NoError(t, err)
	_, err = r.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Update(ctx, ec))

	pos, ok := ec.GetInt("numbers.read.count")
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	restarted := item.NewListItemReader("numbers", []int{1, 2, 3, 4})
	require.NoError(t, restarted.Open(ctx, ec))
	v, err := restarted.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestListItemReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := item.NewListItemReader("numbers", []int{1})
	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListItemWriter_KeepsChunks(t *testing.T) {
	ctx := context.Background()
	w := item.NewListItemWriter[string]()
	handle := &test.MockTx{}
	require.NoError(t, w.Write(ctx, handle, []string{"a", "b"}))
	require.NoError(t, w.Write(ctx, handle, []string{"c"}))

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, w.Chunks())
	assert.Equal(t, []string{"a", "b", "c"}, w.Items())
}

type product struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newGormDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gormadaptor.OpenDialector(
		sqlite.Open(filepath.Join(t.TempDir(), "items.db")+"?_busy_timeout=5000"),
		config.PoolConfig{}, "SILENT")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&product{}))
	t.Cleanup(func() { _ = gormadaptor.Close(db) })
	return db
}

func countProducts(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&product{}).Count(&n).Error)
	return n
}

func TestGormItemWriter_RolledBackChunkLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	db := newGormDB(t)
	tm := gormadaptor.NewGormTransactionManager(db)
	w := item.NewGormItemWriter[product]("products", "", item.WithBatchSize(2))

	handle, err := tm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, handle, []product{{Name: "a"}, {Name: "b"}, {Name: "c"}}))
	require.NoError(t, tm.Rollback(handle))
	assert.Equal(t, int64(0), countProducts(t, db))

	handle, err = tm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, handle, []product{{Name: "a"}, {Name: "b"}, {Name: "c"}}))
	require.NoError(t, tm.Commit(handle))
	assert.Equal(t, int64(3), countProducts(t, db))
}

func TestGormItemWriter_Upsert(t *testing.T) {
	ctx := context.Background()
	db := newGormDB(t)
	tm := gormadaptor.NewGormTransactionManager(db)
	w := item.NewGormItemWriter[product]("products", "products", item.WithUpsert([]string{"id"}, []string{"name"}))

	for _, name := range []string{"first", "second"} {
		handle, err := tm.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, w.Write(ctx, handle, []product{{ID: 1, Name: name}}))
		require.NoError(t, tm.Commit(handle))
	}

	var p product
	require.NoError(t, db.First(&p, 1).Error)
	assert.Equal(t, "second", p.Name)
	assert.Equal(t, int64(1), countProducts(t, db))
}

func TestGormItemWriter_RequiresTransaction(t *testing.T) {
	w := item.NewGormItemWriter[product]("products", "")
	err := w.Write(context.Background(), nil, []product{{Name: "a"}})
	require.Error(t, err)
	assert.Equal(t, exception.KindWriter, exception.KindOf(err))
}

type reading struct {
	ID  int64  `parquet:"name=id, type=INT64"`
	Day string `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func readParquet(t *testing.T, path string) []reading {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(reading), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]reading, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestParquetItemWriter_WritesOnlyCommittedChunksPerPartition(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := item.NewParquetItemWriter("readings", map[string]interface{}{
		"outputDir":       dir,
		"compressionType": "none",
	}, new(reading), func(r reading) (string, error) { return "dt=" + r.Day, nil })
	require.NoError(t, err)

	ec := model.NewExecutionContext()
	handle := &test.MockTx{}
	require.NoError(t, w.Open(ctx, ec))

	require.NoError(t, w.Write(ctx, handle, []reading{{ID: 1, Day: "2024-01-01"}, {ID: 2, Day: "2024-01-02"}}))
	require.NoError(t, w.Update(ctx, ec))

	// Rolled back: never reaches Update.
	require.NoError(t, w.Write(ctx, handle, []reading{{ID: 99, Day: "2024-01-01"}}))

	require.NoError(t, w.Write(ctx, handle, []reading{{ID: 3, Day: "2024-01-01"}}))
	require.NoError(t, w.Update(ctx, ec))

	buffered, ok := ec.GetInt("readings.buffered.count")
	require.True(t, ok)
	assert.Equal(t, 3, buffered)

	require.NoError(t, w.Close(ctx))
	files := w.Files()
	require.Len(t, files, 2)

	ids := map[string][]int64{}
	for _, f := range files {
		for _, r := range readParquet(t, f) {
			ids[r.Day] = append(ids[r.Day], r.ID)
		}
		assert.Contains(t, f, filepath.Join(dir, "dt="))
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids["2024-01-01"])
	assert.Equal(t, []int64{2}, ids["2024-01-02"])
}

func TestParquetItemWriter_NoFileWhenNothingCommitted(t *testing.T) {
	ctx := context.Background()
	w, err := item.NewParquetItemWriter[reading]("readings", map[string]interface{}{"outputDir": t.TempDir()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, &test.MockTx{}, []reading{{ID: 1}}))
	require.NoError(t, w.Close(ctx))
	assert.Empty(t, w.Files())
}

func TestNewParquetItemWriter_InvalidConfig(t *testing.T) {
	_, err := item.NewParquetItemWriter[reading]("readings", map[string]interface{}{}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfig, exception.KindOf(err))

	_, err = item.NewParquetItemWriter[reading]("readings", map[string]interface{}{
		"outputDir":       t.TempDir(),
		"compressionType": "lz77",
	}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfig, exception.KindOf(err))

	_, err = item.NewParquetItemWriter[reading]("readings", map[string]interface{}{
		"outputDir": t.TempDir(),
		"outputdr":  "typo",
	}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfig, exception.KindOf(err))
}

func seedProducts(t *testing.T, db *gorm.DB, names ...string) {
	t.Helper()
	rows := make([]product, 0, len(names))
	for _, n := range names {
		rows = append(rows, product{Name: n})
	}
	require.NoError(t, db.Create(&rows).Error)
}

func readAll[T any](t *testing.T, r port.ItemReader[T]) []T {
	t.Helper()
	var out []T
	for {
		v, err := r.Read(context.Background())
		if port.IsEndOfInput(err) {
			return out
		}
		require.NoError(t, err)
		out = append(out, v)
	}
}

func productNames(ps []product) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	return names
}

func TestGormPagingReader_ReadsAcrossPages(t *testing.T) {
	db := newGormDB(t)
	seedProducts(t, db, "a", "b", "c", "d", "e")

	r := item.NewGormPagingReader[product](db, "products", "id", 2, nil)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, productNames(readAll[product](t, r)))
	require.NoError(t, r.Close(context.Background()))
}

func TestGormPagingReader_ResumesAfterCommittedPosition(t *testing.T) {
	ctx := context.Background()
	db := newGormDB(t)
	seedProducts(t, db, "a", "b", "c", "d")
	ec := model.NewExecutionContext()

	first := item.NewGormPagingReader[product](db, "products", "id", 3, nil)
	require.NoError(t, first.Open(ctx, ec))
	_, err := first.Read(ctx)
	require.NoError(t, err)
	_, err = first.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Update(ctx, ec))

	restarted := item.NewGormPagingReader[product](db, "products", "id", 3, nil)
	require.NoError(t, restarted.Open(ctx, ec))
	assert.Equal(t, []string{"c", "d"}, productNames(readAll[product](t, restarted)))
}

func TestGormPagingReader_Scope(t *testing.T) {
	db := newGormDB(t)
	seedProducts(t, db, "keep-1", "drop", "keep-2")

	r := item.NewGormPagingReader[product](db, "products", "id", 10, func(q *gorm.DB) *gorm.DB {
		return q.Where("name LIKE ?", "keep-%")
	})
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	assert.Equal(t, []string{"keep-1", "keep-2"}, productNames(readAll[product](t, r)))
}
