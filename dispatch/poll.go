package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// awaitResult polls the job until it completes, fails, or callCtx ends.
// Every wait is one poll interval; GetResult errors and unrecognized
// statuses are logged and polling continues.
func (d *Dispatcher) awaitResult(ctx, callCtx context.Context, entry Entry, job *tool.Job, timeout time.Duration, logger *slog.Logger) (any, int, error) {
	interval := entry.Server.PollInterval
	if interval <= 0 {
		interval = tool.DefaultPollInterval
	}
	logger = logger.With("job_id", job.ID)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	polls := 0
	for {
		select {
		case <-callCtx.Done():
			return nil, polls, deadlineError(ctx, callCtx, job, timeout, polls)
		case <-timer.C:
		}

		polls++
		resp, err := entry.Handler.GetResult(callCtx, entry.Server, job.ID)
		observation := tool.PollObservation{
			Server:  entry.Server.DisplayName(),
			Tool:    entry.Name,
			JobID:   job.ID,
			Attempt: polls,
			Status:  resp.Status,
		}
		if err != nil {
			observation.ErrorMsg = err.Error()
		}
		d.observer.ObservePoll(observation)

		if err != nil {
			if deadlineErr := deadlineError(ctx, callCtx, job, timeout, polls); deadlineErr != nil {
				return nil, polls, deadlineErr
			}
			if tool.ErrorCode(err) == tool.ErrorCodeUnsupportedProtocol {
				return nil, polls, err
			}
			logger.Warn("poll failed; retrying until deadline", "poll", polls, "error", err)
		} else {
			job.Status = resp.Status
			switch resp.Status {
			case tool.JobCompleted:
				job.Result = resp.Data
				return resp.Data, polls, nil
			case tool.JobFailed:
				job.Error = resp.Error
				if resp.JobID == "" {
					resp.JobID = job.ID
				}
				return nil, polls, failedJobError(entry.Name, resp)
			case tool.JobPending, tool.JobProcessing, tool.JobAccepted:
				logger.Debug("job still running", "poll", polls, "status", string(resp.Status))
			default:
				logger.Warn("unrecognized job status; treating as pending", "poll", polls, "status", string(resp.Status))
			}
		}

		timer.Reset(interval)
	}
}
