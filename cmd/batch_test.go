package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datagenie/internal/model"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []batchLine {
	t.Helper()
	var lines []batchLine
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var l batchLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestProcessBatch_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := processBatch(context.Background(), nil, 0, 2, &buf, func(_ context.Context, _ string) (*model.PipelineState, error) {
		t.Fatal("ask should not be called for an empty batch")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
}

func TestProcessBatch_OrderAndFailures(t *testing.T) {
	questions := []string{"q0", "q1", "q2", "q3"}

	var buf bytes.Buffer
	err := processBatch(context.Background(), questions, 0, 4, &buf, func(_ context.Context, q string) (*model.PipelineState, error) {
		// Earlier questions finish last.
		switch q {
		case "q0":
			time.Sleep(20 * time.Millisecond)
		case "q2":
			return &model.PipelineState{Question: q, Reason: "bad output"}, errors.New("classification parse error")
		}
		return &model.PipelineState{Question: q, Outcome: model.OutcomeAnswered}, nil
	})
	require.NoError(t, err)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	for i, l := range lines {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, questions[i], l.Question)
		require.NotNil(t, l.State)
	}
	assert.Equal(t, model.OutcomeAnswered, lines[0].State.Outcome)
	assert.Equal(t, "classification parse error", lines[2].Error)
	assert.Empty(t, lines[3].Error)
}

func TestProcessBatch_LimitAndConcurrency(t *testing.T) {
	questions := make([]string, 10)
	for i := range questions {
		questions[i] = fmt.Sprintf("question %d", i)
	}

	var calls, inFlight, peak atomic.Int64
	var buf bytes.Buffer
	err := processBatch(context.Background(), questions, 6, 2, &buf, func(_ context.Context, q string) (*model.PipelineState, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &model.PipelineState{Question: q}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), calls.Load())
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Len(t, decodeLines(t, &buf), 6)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := processBatch(ctx, []string{"q0"}, 0, 1, &buf, func(ctx context.Context, q string) (*model.PipelineState, error) {
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}
