// Package step builds the demo's chunk step: generated sensor readings written in chunks.
package step

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tigerroll/stepguard/pkg/batch/component/item"
	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// Reading is one generated sensor value.
type Reading struct {
	ID       int64   `gorm:"primaryKey" parquet:"name=id, type=INT64"`
	Sensor   string  `parquet:"name=sensor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value    float64 `parquet:"name=value, type=DOUBLE"`
	TakenDay string  `parquet:"name=taken_day, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName is the table GormItemWriter inserts into.
func (Reading) TableName() string { return "demo_readings" }

// ReadingReader generates total readings, pausing delay before each one so that the step runs
// long enough to be interrupted.
type ReadingReader struct {
	total int64
	delay time.Duration
	next  int64
	rnd   *rand.Rand
}

// NewReadingReader creates a reader of total readings.
func NewReadingReader(total int64, delay time.Duration) *ReadingReader {
	return &ReadingReader{total: total, delay: delay, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Read returns the next reading. It honours ctx while pausing.
func (r *ReadingReader) Read(ctx context.Context) (Reading, error) {
	if r.next >= r.total {
		return Reading{}, port.ErrNoMoreItems
	}
	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case <-time.After(r.delay):
	}
	r.next++
	now := time.Now()
	reading := Reading{
		ID:       r.next,
		Sensor:   fmt.Sprintf("sensor-%d", r.next%3),
		Value:    r.rnd.Float64() * 100,
		TakenDay: now.Format("2006-01-02"),
	}
	logger.Debugf("ReadingReader: generated reading %d.", reading.ID)
	return reading, nil
}

// NewParquetReadingWriter writes readings to outputDir, partitioned by day.
func NewParquetReadingWriter(outputDir string) (*item.ParquetItemWriter[Reading], error) {
	return item.NewParquetItemWriter("readings", map[string]interface{}{
		"outputDir":       outputDir,
		"compressionType": "SNAPPY",
	}, new(Reading), func(r Reading) (string, error) {
		return "dt=" + r.TakenDay, nil
	})
}

var _ port.ItemReader[Reading] = (*ReadingReader)(nil)
