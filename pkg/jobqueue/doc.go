// Package jobqueue provides the durable, priority delivery job queue used by
// the messaging channel. Jobs are claimed exclusively by workers, retried
// with exponential backoff and surfaced to operators when they exhaust their
// attempt budget.
//
// A job's priority is derived from its type (OTP sends preempt everything,
// bulk fan-outs yield to everything) unless overridden at enqueue time.
// Higher priority values are claimed first; within one priority jobs are
// processed FIFO by enqueue time.
//
// Basic usage:
//
//	store := jobqueue.NewMemoryStore()
//	defer store.Close()
//
//	queue, _ := jobqueue.NewQueue(store)
//	worker, _ := jobqueue.NewWorker(queue, jobqueue.WithConcurrency(5))
//	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendOTP,
//		func(ctx context.Context, p jobqueue.OTPPayload) error {
//			return transport.SendOTP(ctx, p.Recipient, p.Code)
//		}))
//
//	_ = worker.Start(ctx)
//	defer worker.Stop()
//
//	_, _ = queue.Enqueue(ctx, jobqueue.JobTypeSendOTP, jobqueue.OTPPayload{
//		Recipient: "+15550100", Code: "483921",
//	})
//
// Pause and Resume gate new claims without discarding queued work. Clean,
// Stats, JobsByState and Retry form the operator surface; none of them sit
// on the delivery hot path.
package jobqueue
