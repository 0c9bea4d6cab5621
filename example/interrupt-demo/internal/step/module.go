package step

import (
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/stepguard/pkg/batch/component/item"
	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

const (
	totalReadings = 500
	readDelay     = 100 * time.Millisecond
	outputDir     = "output/readings"
)

// StepParams are the dependencies of the demo step.
type StepParams struct {
	fx.In

	Config         *config.Config
	Synchronizer   port.StepExecutionSynchronizer
	TxManager      tx.TransactionManager
	JobRepository  repository.JobRepository
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	StepListeners  []port.StepExecutionListener `group:"stepListeners"`
	ChunkListeners []port.ChunkListener         `group:"chunkListeners"`
	DB             *gorm.DB                     `optional:"true"`
}

// NewReadingsStep builds the chunk step. With a database the readings go to the demo_readings
// table inside each chunk transaction; otherwise they are written to Parquet files.
func NewReadingsStep(p StepParams) (port.Step, error) {
	batch := p.Config.Stepguard.Batch

	var writer port.ItemWriter[Reading]
	if p.DB != nil {
		if err := p.DB.AutoMigrate(&Reading{}); err != nil {
			return nil, err
		}
		writer = item.NewGormItemWriter[Reading]("readings", "")
		logger.Infof("Readings are written to table 'demo_readings'.")
	} else {
		pw, err := NewParquetReadingWriter(outputDir)
		if err != nil {
			return nil, err
		}
		writer = pw
		logger.Infof("Readings are written as Parquet files under '%s'.", outputDir)
	}

	chunk, err := tasklet.NewChunkOrientedTasklet[Reading](NewReadingReader(totalReadings, readDelay), writer, batch.ChunkSize)
	if err != nil {
		return nil, err
	}
	step, err := tasklet.NewTaskletStep(batch.StepName,
		tasklet.WithSynchronizer(p.Synchronizer),
		tasklet.WithTransactionManager(p.TxManager),
		tasklet.WithJobRepository(p.JobRepository),
		tasklet.WithTasklet(chunk),
		tasklet.WithIterationLimit(batch.StepIterationLimit),
		tasklet.WithStartLimit(batch.StartLimit),
		tasklet.WithAllowStartIfComplete(batch.AllowStartIfComplete),
		tasklet.WithMetricRecorder(p.MetricRecorder),
		tasklet.WithTracer(p.Tracer),
		tasklet.WithStepExecutionListeners(p.StepListeners...),
		tasklet.WithChunkListeners(p.ChunkListeners...),
	)
	if err != nil {
		return nil, err
	}
	return step, nil
}

// Module provides the demo step as port.Step.
var Module = fx.Options(
	fx.Provide(NewReadingsStep),
)
