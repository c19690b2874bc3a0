package blacklist

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const (
	// RefreshWorkflowName is the registered workflow type.
	RefreshWorkflowName = "BlacklistRefresh"
	// RefreshActivityName is the registered activity type.
	RefreshActivityName = "RefreshBlacklist"

	errTypeEmptySnapshot = "EmptySnapshot"
)

// RefreshInput is the workflow argument.
type RefreshInput struct {
	Force bool `json:"force"`
}

// Activities exposes the refresher to Temporal workers.
type Activities struct {
	Refresher *Refresher
}

// RefreshBlacklist runs one refresh. An empty source list is not retried.
func (a *Activities) RefreshBlacklist(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	activity.GetLogger(ctx).Info("blacklist refresh started", "force", in.Force)
	res, err := a.Refresher.Run(ctx, in.Force)
	if errors.Is(err, ErrEmptySnapshot) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeEmptySnapshot, err)
	}
	return res, err
}

// RefreshWorkflow runs the refresh activity with a bounded retry policy.
// Runs never overlap because the schedule skips while one is in flight.
func RefreshWorkflow(ctx workflow.Context, in RefreshInput) (*RefreshResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Minute,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{errTypeEmptySnapshot},
		},
	})

	var res RefreshResult
	if err := workflow.ExecuteActivity(ctx, RefreshActivityName, in).Get(ctx, &res); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("blacklist refresh finished", "skipped", res.Skipped)
	return &res, nil
}

// ScheduleConfig controls the recurring refresh trigger.
type ScheduleConfig struct {
	ID        string
	Cron      string
	TaskQueue string
}

// Registry is satisfied by a worker and by the workflow test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// Register adds the workflow and activity to w.
func Register(w Registry, acts *Activities) {
	w.RegisterWorkflowWithOptions(RefreshWorkflow, workflow.RegisterOptions{Name: RefreshWorkflowName})
	w.RegisterActivityWithOptions(acts.RefreshBlacklist, activity.RegisterOptions{Name: RefreshActivityName})
}

// NewWorker creates a worker for the refresh task queue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, acts)
	return w
}

// EnsureSchedule creates the recurring schedule. An existing schedule with
// the same ID is left as is.
func EnsureSchedule(ctx context.Context, c client.Client, cfg ScheduleConfig) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: cfg.ID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cfg.Cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        cfg.ID + "-run",
			Workflow:  RefreshWorkflowName,
			Args:      []any{RefreshInput{}},
			TaskQueue: cfg.TaskQueue,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return nil
	}
	return eris.Wrapf(err, "blacklist: create schedule %s", cfg.ID)
}

// TriggerRefresh starts one workflow run immediately.
func TriggerRefresh(ctx context.Context, c client.Client, taskQueue string, force bool) (*RefreshResult, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: taskQueue,
	}, RefreshWorkflowName, RefreshInput{Force: force})
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: start refresh workflow")
	}
	var res RefreshResult
	if err := run.Get(ctx, &res); err != nil {
		return nil, eris.Wrap(err, "blacklist: refresh workflow")
	}
	return &res, nil
}
