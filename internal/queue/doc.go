// Package queue runs named background jobs with retries and exponential backoff.
//
// A [Queue] pairs a [Broker], which stores jobs, with the handlers registered for each job name.
// Three brokers are provided:
//
//   - [MemoryBroker] keeps jobs in process memory (tests, development)
//   - [SQLiteBroker] keeps jobs in the fetch_jobs table of the main database
//   - [RedisBroker] keeps jobs in Redis so several worker processes can share them
//
// Claiming a job is atomic in every broker, so a job is never handed to two workers at once.
// A claim locks the job for the queue's lock timeout; if its worker dies, the job is claimed
// again once the lock expires, and the lost run counts as an attempt.
// Jobs that finish are deleted unless kept with [Options.KeepOnSuccess]; jobs that run out of
// attempts are retained as failed when [Options.KeepOnFailure] is set, and can be re-driven with
// [Queue.RetryFailed].
package queue
