package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	usecase "github.com/tigerroll/stepguard/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/synchronizer"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/stepguard/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/stepguard/pkg/batch/test"
)

// endlessReader yields an item every few milliseconds and never reaches the end of input.
func endlessReader() test.FuncReader[*int] {
	n := 0
	return func(ctx context.Context) (*int, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		n++
		v := n
		return &v, nil
	}
}

func TestStartStepExecution_StopWaitsForStoppedStatus(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	launcher := usecase.NewSimpleStepLauncher(repo)
	operator := usecase.NewStepOperator(repo, launcher)

	chunk, err := tasklet.NewChunkOrientedTasklet[*int](endlessReader(), &test.RecordingWriter[*int]{}, 10)
	require.NoError(t, err)
	step, err := tasklet.NewTaskletStep("endless",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)
	require.NoError(t, err)

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner) {
			startStepExecution(lc, shutdowner, launcher, operator, step, config.NewConfig(), context.Background())
		}),
	)
	app.RequireStart()

	var id string
	require.Eventually(t, func() bool {
		running := launcher.Running()
		if len(running) == 0 {
			return false
		}
		id = running[0]
		return true
	}, 5*time.Second, 5*time.Millisecond)

	// No signal reached appCtx: stopping the application alone must stop the step.
	app.RequireStop()

	stored, err := repo.FindStepExecutionByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
	assert.Empty(t, launcher.Running())
}
