// Package cli implements the `studentdesk jobs` maintenance subcommand.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studentdesk/studentdesk/jobs"
)

const usage = "usage: jobs trigger <job> [catalog-path] | jobs stats | jobs scheduled [n]"

var errNotConnected = errors.New("jobs cli: not connected to redis")

// JobsCLI enqueues RBAC maintenance tasks by hand and inspects the queue.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue's Redis.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
	}
}

// Close releases both connections.
func (c *JobsCLI) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues the named task. rbac:registry_sync accepts an optional
// catalog path.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args ...string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errNotConnected
	}
	task, err := buildTask(name, args)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func buildTask(name string, args []string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskRegistrySync:
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return jobs.NewRegistrySyncTask(path)
	case jobs.TaskOverridePrune:
		return jobs.NewOverridePruneTask(), nil
	}
	return nil, fmt.Errorf("jobs cli: unknown task %q (want %s or %s)", name, jobs.TaskRegistrySync, jobs.TaskOverridePrune)
}

// QueueStats is a snapshot of the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueue reads the default queue's counters.
func (c *JobsCLI) InspectQueue(_ context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errNotConnected
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue info: %w", err)
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Failed:    info.Failed,
	}, nil
}

// ListScheduled returns up to size tasks waiting for their process time.
func (c *JobsCLI) ListScheduled(_ context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errNotConnected
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Run dispatches one subcommand and writes its output to out.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "trigger":
		if len(rest) == 0 {
			return errors.New(usage)
		}
		info, err := c.Trigger(ctx, rest[0], rest[1:]...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tFAILED")
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
		return tw.Flush()
	case "scheduled":
		size := 0
		if len(rest) > 0 {
			if _, err := fmt.Sscanf(rest[0], "%d", &size); err != nil {
				return fmt.Errorf("jobs cli: bad count %q", rest[0])
			}
		}
		tasks, err := c.ListScheduled(ctx, size)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("jobs cli: unknown command %q; %s", cmd, usage)
	}
}
