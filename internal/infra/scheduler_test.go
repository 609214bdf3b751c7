package infra

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/usecase"
)

type countingImporter struct {
	calls atomic.Int32
	days  atomic.Int32
}

func (c *countingImporter) Import(ctx context.Context, days int) (*usecase.ImportResult, error) {
	c.calls.Add(1)
	c.days.Store(int32(days))
	return &usecase.ImportResult{Imported: 1, Total: 1}, nil
}

func TestSchedulerDisabled(t *testing.T) {
	importer := &countingImporter{}
	s := NewScheduler(importer, "", 30)

	require.NoError(t, s.Start())
	s.Stop()
	assert.Zero(t, importer.calls.Load())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&countingImporter{}, "every day", 30)
	assert.Error(t, s.Start())
}

func TestSchedulerRunNow(t *testing.T) {
	importer := &countingImporter{}
	s := NewScheduler(importer, "0 10 0 * * *", 7)

	require.NoError(t, s.Start())
	defer s.Stop()

	s.RunNow()
	assert.Equal(t, int32(1), importer.calls.Load())
	assert.Equal(t, int32(7), importer.days.Load())
}
