package inference_test

import (
	"context"
	"testing"

	"maestro/internal/inference"
	"maestro/internal/models"
	"maestro/internal/modelswap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopEngineGenerate(t *testing.T) {
	e := inference.NewNoopEngine(t.TempDir())

	var stages []string
	result, err := e.Generate(context.Background(), &models.GenerationRequest{
		Prompt:    "jazz",
		BatchSize: 3,
	}, func(v float64, stage string) { stages = append(stages, stage) })

	require.NoError(t, err)
	assert.Equal(t, models.KindGeneration, result.Kind)
	assert.Len(t, result.AudioPaths, 3)
	assert.Contains(t, stages, "generating")
	assert.Contains(t, stages, "finalizing")
}

func TestNoopEngineFullAnalysis(t *testing.T) {
	e := inference.NewNoopEngine(t.TempDir())

	result, err := e.Generate(context.Background(), &models.GenerationRequest{
		Prompt:           "describe this",
		FullAnalysisOnly: true,
	}, func(float64, string) {})

	require.NoError(t, err)
	assert.Equal(t, models.KindFullAnalysis, result.Kind)
	assert.Equal(t, "describe this", result.Analysis["caption"])
	assert.Empty(t, result.AudioPaths)
}

func TestNoopEngineHonorsCancel(t *testing.T) {
	e := inference.NewNoopEngine(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Generate(ctx, &models.GenerationRequest{}, func(float64, string) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoopEngineReconfigurable(t *testing.T) {
	e := inference.NewNoopEngine(t.TempDir())

	params := e.Params()
	require.NotNil(t, params)
	assert.Equal(t, "noop", params[modelswap.ModelPathKey])

	require.NoError(t, e.Reinitialize(modelswap.Params{modelswap.ModelPathKey: "custom"}))
	assert.Equal(t, "custom", e.Params()[modelswap.ModelPathKey])
}
