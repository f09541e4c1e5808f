// Package jobs holds the scheduled jobs run by the background scheduler.
package jobs

import (
	"context"
	"time"

	"moara/internal/services"
)

// SettlementBatchJob claims due schedule items and settles them.
type SettlementBatchJob struct {
	settlements services.SettlementServicer
	batchSize   int
}

// NewSettlementBatchJob creates a new SettlementBatchJob.
func NewSettlementBatchJob(settlements services.SettlementServicer, batchSize int) *SettlementBatchJob {
	return &SettlementBatchJob{settlements: settlements, batchSize: batchSize}
}

// Name implements scheduler.Job.
func (j *SettlementBatchJob) Name() string {
	return "settlement_batch"
}

// Run executes one settlement batch. Individual item failures are counted
// inside the batch, not surfaced here; only claim-level errors abort the run.
func (j *SettlementBatchJob) Run() error {
	_, err := j.settlements.RunBatch(context.Background(), time.Now(), j.batchSize)
	return err
}
