package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/store"
)

func TestRecorder_RecordAndRead(t *testing.T) {
	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	defer meta.Close()
	r := NewRecorder(meta)
	ctx := context.Background()

	r.Record(ctx, CounterQueries)
	r.Record(ctx, CounterQueries)
	r.Record(ctx, CounterCompletionCalls)

	counters, err := r.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters[CounterQueries])
	assert.Equal(t, int64(1), counters[CounterCompletionCalls])
	assert.Zero(t, counters[CounterSearches])
}

func TestRecorder_NilIsNoOp(t *testing.T) {
	var r *Recorder

	// Given a nil recorder, recording must not panic and reads must
	// return an empty map.
	r.Record(context.Background(), CounterQueries)
	counters, err := r.Counters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counters)
}
