package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/internal/tcn"
)

func TestRunSynthetic(t *testing.T) {
	if testing.Short() {
		t.Skip("trains a full-size network")
	}
	dir := t.TempDir()
	opts := options{
		Epochs:    1,
		LR:        1e-3,
		BatchSize: 16,
		OutDir:    dir,
		Seed:      3,
		Synthetic: true,
		Days:      2,
	}
	require.NoError(t, run(context.Background(), opts))

	schema := preprocess.DefaultSchema()
	scaler, err := preprocess.LoadScaler(filepath.Join(dir, scalerFile))
	require.NoError(t, err)
	assert.NoError(t, scaler.CheckSchema(schema))

	net, err := tcn.Load(filepath.Join(dir, modelFile), tcn.DefaultConfig(schema.Len()))
	require.NoError(t, err)
	assert.Positive(t, net.ParamCount())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, options{Epochs: 1, LR: 1e-3, BatchSize: 16, OutDir: t.TempDir(), Synthetic: true, Days: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
