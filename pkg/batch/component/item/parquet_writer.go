package item

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetItemWriter.
type ParquetWriterConfig struct {
	// OutputDir is the local directory files are written under.
	OutputDir string `yaml:"outputDir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compressionType"`
}

// ParquetItemWriter buffers committed items and writes them to Parquet files when closed,
// one file per partition key under OutputDir.
//
// A file cannot take part in the chunk transaction. Items of a chunk are held as pending until
// Update, which the step calls once the chunk committed; pending items of a chunk that rolled
// back are dropped by the next Write.
type ParquetItemWriter[T any] struct {
	name             string
	config           ParquetWriterConfig
	itemPrototype    *T
	partitionKeyFunc func(T) (string, error)

	mu       sync.Mutex
	pending  map[string][]T
	buffered map[string][]T
	total    int64
	files    []string
}

// NewParquetItemWriter creates a writer from properties (outputDir, compressionType).
// itemPrototype is used for schema reflection; partitionKeyFunc may be nil to write a single file.
func NewParquetItemWriter[T any](
	name string,
	properties map[string]interface{},
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetItemWriter[T], error) {
	var cfg ParquetWriterConfig
	if err := configbinder.BindPropertiesStrict(properties, &cfg); err != nil {
		return nil, exception.NewBatchErrorf("ParquetItemWriter", exception.KindConfig, "failed to decode properties for '%s'", name, err)
	}
	if cfg.OutputDir == "" {
		return nil, exception.NewBatchErrorf("ParquetItemWriter", exception.KindConfig, "writer '%s' requires 'outputDir'", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.NewBatchErrorf("ParquetItemWriter", exception.KindConfig, "writer '%s'", name, err)
	}
	if itemPrototype == nil {
		itemPrototype = new(T)
	}
	return &ParquetItemWriter[T]{
		name:             name,
		config:           cfg,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		pending:          make(map[string][]T),
		buffered:         make(map[string][]T),
	}, nil
}

// Open resets the buffers and creates OutputDir.
func (w *ParquetItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = make(map[string][]T)
	w.buffered = make(map[string][]T)
	w.total = 0
	w.files = nil
	if err := os.MkdirAll(w.config.OutputDir, 0o755); err != nil {
		return exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "cannot create output directory '%s'", w.config.OutputDir, err)
	}
	logger.Infof("ParquetItemWriter '%s' opened. Output directory: %s", w.name, w.config.OutputDir)
	return nil
}

// Write holds the items of the current chunk as pending.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = make(map[string][]T)
	for _, item := range items {
		key := ""
		if w.partitionKeyFunc != nil {
			k, err := w.partitionKeyFunc(item)
			if err != nil {
				w.pending = make(map[string][]T)
				return exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "failed to get partition key in '%s'", w.name, err)
			}
			key = k
		}
		w.pending[key] = append(w.pending[key], item)
	}
	return nil
}

// Update moves the pending chunk into the buffer and records the buffered count in ec.
func (w *ParquetItemWriter[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, items := range w.pending {
		w.buffered[key] = append(w.buffered[key], items...)
		w.total += int64(len(items))
	}
	w.pending = make(map[string][]T)
	ec.Put(w.name+".buffered.count", int(w.total))
	return nil
}

// Close writes every buffered partition to its own file. Errors of individual partitions are joined.
func (w *ParquetItemWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.total == 0 {
		logger.Infof("ParquetItemWriter '%s': nothing buffered, no file written.", w.name)
		return nil
	}
	codec, _ := compressionCodec(w.config.CompressionType)

	var errs error
	for key, items := range w.buffered {
		path, err := w.writePartition(key, items, codec)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		w.files = append(w.files, path)
		logger.Infof("ParquetItemWriter '%s': wrote %d records to %s", w.name, len(items), path)
	}

	w.buffered = make(map[string][]T)
	w.pending = make(map[string][]T)
	w.total = 0
	return errs
}

func (w *ParquetItemWriter[T]) writePartition(key string, items []T, codec parquet.CompressionCodec) (path string, err error) {
	dir := filepath.Join(w.config.OutputDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "cannot create partition directory '%s'", dir, err)
	}
	path = filepath.Join(dir, fmt.Sprintf("data_%s_%s.parquet", time.Now().Format("20060102150405"), uuid.NewString()[:8]))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return "", exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "cannot create file '%s'", path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "cannot close file '%s'", path, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, w.itemPrototype, 1)
	if err != nil {
		return "", exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "cannot create parquet writer for partition '%s'", key, err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = codec

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return "", exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "failed to write record to partition '%s'", key, err)
		}
	}

	// WriteStop panics on some schema mismatches.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "parquet writer panicked for partition '%s': %s", key, fmt.Sprint(r))
			}
		}()
		if serr := pw.WriteStop(); serr != nil {
			err = exception.NewBatchErrorf("ParquetItemWriter", exception.KindWriter, "failed to finish partition '%s'", key, serr)
		}
	}()
	if err != nil {
		return "", err
	}
	return path, nil
}

// Files returns the paths written by the last Close.
func (w *ParquetItemWriter[T]) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

var (
	_ port.ItemWriter[any] = (*ParquetItemWriter[any])(nil)
	_ port.ItemStream      = (*ParquetItemWriter[any])(nil)
)
