package tasklet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/repeat"
	exception "github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// ChunkOrientedTasklet reads items one by one, writes them as one chunk and commits the chunk in
// its own transaction. One Execute call handles exactly one chunk.
//
// The transaction manager, repository, listeners and observability hooks are bound by the
// TaskletStep that runs the tasklet, so an instance must not be shared between steps.
type ChunkOrientedTasklet[T any] struct {
	reader      port.ItemReader[T]
	writer      port.ItemWriter[T]
	chunkPolicy port.CompletionPolicy
	txOptions   *sql.TxOptions

	stepName       string
	txManager      tx.TransactionManager
	jobRepository  repository.StepExecution
	chunkListeners []port.ChunkListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// ChunkOption configures a ChunkOrientedTasklet.
type ChunkOption[T any] func(*ChunkOrientedTasklet[T])

// WithChunkCompletionPolicy replaces the chunk size policy, e.g. with a timeout based one.
func WithChunkCompletionPolicy[T any](p port.CompletionPolicy) ChunkOption[T] {
	return func(t *ChunkOrientedTasklet[T]) { t.chunkPolicy = p }
}

// WithTxOptions sets the options used to begin each chunk transaction.
func WithTxOptions[T any](opts *sql.TxOptions) ChunkOption[T] {
	return func(t *ChunkOrientedTasklet[T]) { t.txOptions = opts }
}

// NewChunkOrientedTasklet creates a tasklet that processes chunkSize items per transaction.
// writer may be nil for steps that only drain their reader.
func NewChunkOrientedTasklet[T any](reader port.ItemReader[T], writer port.ItemWriter[T], chunkSize int, opts ...ChunkOption[T]) (*ChunkOrientedTasklet[T], error) {
	if reader == nil {
		return nil, errors.New("chunk tasklet requires an item reader")
	}
	t := &ChunkOrientedTasklet[T]{
		reader:         reader,
		writer:         writer,
		chunkPolicy:    repeat.NewSimpleCompletionPolicy(chunkSize),
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// bind implements stepBoundTasklet.
func (t *ChunkOrientedTasklet[T]) bind(s *TaskletStep) {
	t.stepName = s.name
	t.txManager = s.txManager
	t.jobRepository = s.jobRepository
	t.chunkListeners = s.chunkListeners
	t.metricRecorder = s.metricRecorder
	t.tracer = s.tracer
}

// Execute processes one chunk.
//
// It returns FINISHED only when the first read of the chunk found the input exhausted. Errors are
// returned classified: cancellations match exception.ErrCancelled, other failures are BatchErrors
// of kind READER, WRITER or TRANSACTION. The chunk transaction is rolled back on every error.
func (t *ChunkOrientedTasklet[T]) Execute(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
	if t.txManager == nil {
		return port.RepeatStatusFinished, exception.NewBatchError(se.StepName, exception.KindTransaction, "chunk tasklet is not bound to a transaction manager", nil)
	}
	ctx, endSpan := t.tracer.StartChunkSpan(ctx, se)
	defer endSpan()

	handle, err := t.txManager.Begin(ctx, t.txOptions)
	if err != nil {
		if exception.IsCancelledBy(ctx, err) {
			return port.RepeatStatusFinished, exception.NewCancelledError(se.StepName, err)
		}
		return port.RepeatStatusFinished, exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to begin chunk transaction", err)
	}
	txCtx := tx.WithTx(ctx, handle)
	defer func() {
		if r := recover(); r != nil {
			_ = t.rollback(txCtx, handle, se, exception.NewBatchErrorf(se.StepName, exception.KindTasklet, "panic in chunk: %s", fmt.Sprint(r)))
			panic(r)
		}
	}()
	t.notifyBeforeChunk(txCtx, se)

	interruption := repeat.NewStepInterruptionPolicy(se, t.jobRepository)
	chunkOperations := repeat.NewRepeatTemplate(
		repeat.WithCompletionPolicy(t.chunkPolicy),
		repeat.WithInterruptionPolicy(interruption),
	)

	var items []T
	endOfInput := false
	_, err = chunkOperations.Iterate(txCtx, func(ctx context.Context, rc *port.RepeatContext) (port.RepeatStatus, error) {
		item, readErr := t.reader.Read(ctx)
		if readErr != nil {
			if port.IsEndOfInput(readErr) {
				endOfInput = true
				return port.RepeatStatusFinished, nil
			}
			if exception.IsCancelledBy(ctx, readErr) {
				return port.RepeatStatusFinished, exception.NewCancelledError(se.StepName, readErr)
			}
			return port.RepeatStatusFinished, exception.NewBatchError(se.StepName, exception.KindReader, "item read failed", readErr)
		}
		if port.IsNilItem(item) {
			endOfInput = true
			return port.RepeatStatusFinished, nil
		}
		items = append(items, item)
		return port.RepeatStatusContinuable, nil
	})
	if err != nil {
		return port.RepeatStatusFinished, t.rollback(txCtx, handle, se, err)
	}
	t.metricRecorder.RecordItemRead(txCtx, se.StepName, len(items))

	if len(items) > 0 && t.writer != nil {
		if writeErr := t.writer.Write(txCtx, handle, items); writeErr != nil {
			if exception.IsCancelledBy(txCtx, writeErr) {
				writeErr = exception.NewCancelledError(se.StepName, writeErr)
			} else {
				writeErr = exception.NewBatchError(se.StepName, exception.KindWriter, "item write failed", writeErr)
			}
			return port.RepeatStatusFinished, t.rollback(txCtx, handle, se, writeErr)
		}
		t.metricRecorder.RecordItemWrite(txCtx, se.StepName, len(items))
	}

	// A stop requested while the chunk was in flight must not commit it.
	if err := interruption.CheckInterrupted(txCtx, nil); err != nil {
		return port.RepeatStatusFinished, t.rollback(txCtx, handle, se, err)
	}

	if err := t.txManager.Commit(handle); err != nil {
		commitErr := exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to commit chunk transaction", err)
		return port.RepeatStatusFinished, t.rollback(txCtx, handle, se, commitErr)
	}

	if len(items) > 0 {
		se.ReadCount += len(items)
		if t.writer != nil {
			se.WriteCount += len(items)
		}
		se.CommitCount++
		t.metricRecorder.RecordChunkCommit(txCtx, se.StepName, len(items))
		if err := t.Update(txCtx, se.ExecutionContext); err != nil {
			logger.Warnf("Step '%s': failed to store stream state after commit: %v", se.StepName, err)
		}
	}
	t.notifyAfterChunk(txCtx, se)
	logger.Debugf("Step '%s': chunk of %d item(s) committed (commits: %d).", se.StepName, len(items), se.CommitCount)

	if endOfInput && len(items) == 0 {
		return port.RepeatStatusFinished, nil
	}
	return port.RepeatStatusContinuable, nil
}

// rollback undoes the chunk and returns cause, joined with the rollback error if there was one.
func (t *ChunkOrientedTasklet[T]) rollback(ctx context.Context, handle tx.Tx, se *model.StepExecution, cause error) error {
	se.RollbackCount++
	t.metricRecorder.RecordChunkRollback(ctx, se.StepName)
	if exception.KindOf(cause) != exception.KindCancelled {
		t.tracer.RecordError(ctx, string(exception.KindOf(cause)), cause)
	}

	err := cause
	if rbErr := t.txManager.Rollback(handle); rbErr != nil {
		logger.Errorf("Step '%s': chunk rollback failed: %v", se.StepName, rbErr)
		err = exception.Append(cause, exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to roll back chunk transaction", rbErr))
	}
	t.notifyAfterChunkError(ctx, se, cause)
	return err
}

// Open opens the reader and writer if they are item streams.
func (t *ChunkOrientedTasklet[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if s, ok := any(t.reader).(port.ItemStream); ok {
		if err := s.Open(ctx, ec); err != nil {
			return exception.NewBatchError(t.stepName, exception.KindReader, "failed to open item reader", err)
		}
	}
	if s, ok := any(t.writer).(port.ItemStream); ok {
		if err := s.Open(ctx, ec); err != nil {
			if rs, ok := any(t.reader).(port.ItemStream); ok {
				_ = rs.Close(ctx)
			}
			return exception.NewBatchError(t.stepName, exception.KindWriter, "failed to open item writer", err)
		}
	}
	return nil
}

// Update stores the stream positions of the reader and writer into ec.
func (t *ChunkOrientedTasklet[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	var err error
	if s, ok := any(t.reader).(port.ItemStream); ok {
		err = s.Update(ctx, ec)
	}
	if s, ok := any(t.writer).(port.ItemStream); ok {
		err = errors.Join(err, s.Update(ctx, ec))
	}
	return err
}

// Close closes the reader and writer if they are item streams. Both are closed even if one fails.
func (t *ChunkOrientedTasklet[T]) Close(ctx context.Context) error {
	var err error
	if s, ok := any(t.reader).(port.ItemStream); ok {
		if cerr := s.Close(ctx); cerr != nil {
			err = exception.Append(err, exception.NewBatchError(t.stepName, exception.KindReader, "failed to close item reader", cerr))
		}
	}
	if s, ok := any(t.writer).(port.ItemStream); ok {
		if cerr := s.Close(ctx); cerr != nil {
			err = exception.Append(err, exception.NewBatchError(t.stepName, exception.KindWriter, "failed to close item writer", cerr))
		}
	}
	return err
}

func (t *ChunkOrientedTasklet[T]) notifyBeforeChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range t.chunkListeners {
		l.BeforeChunk(ctx, se)
	}
}

func (t *ChunkOrientedTasklet[T]) notifyAfterChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range t.chunkListeners {
		l.AfterChunk(ctx, se)
	}
}

func (t *ChunkOrientedTasklet[T]) notifyAfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	for _, l := range t.chunkListeners {
		l.AfterChunkError(ctx, se, err)
	}
}

var (
	_ port.Tasklet     = (*ChunkOrientedTasklet[any])(nil)
	_ port.ItemStream  = (*ChunkOrientedTasklet[any])(nil)
	_ stepBoundTasklet = (*ChunkOrientedTasklet[any])(nil)
)
