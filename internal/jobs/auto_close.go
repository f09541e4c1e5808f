package jobs

import (
	"time"

	"moara/internal/services"
)

// AutoCloseJob deactivates savings plans whose end date has passed.
type AutoCloseJob struct {
	plans services.PlanServicer
}

// NewAutoCloseJob creates a new AutoCloseJob.
func NewAutoCloseJob(plans services.PlanServicer) *AutoCloseJob {
	return &AutoCloseJob{plans: plans}
}

// Name implements scheduler.Job.
func (j *AutoCloseJob) Name() string {
	return "plan_auto_close"
}

// Run sweeps expired plans once.
func (j *AutoCloseJob) Run() error {
	_, err := j.plans.CloseExpired(time.Now())
	return err
}
