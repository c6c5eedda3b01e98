// Package queue is the durable work queue between the dialogue and the
// generation pipeline.
//
// The dialogue calls Enqueue once a request is complete and returns to the
// user immediately; it never waits on the job. Workers claim the oldest
// available job from the jobs table, run it and record the outcome:
//
//	queued -> running -> succeeded
//	                  -> queued (retry, available again after a backoff)
//	                  -> failed
//
// Only errors the Retryable predicate accepts are retried, and only while
// attempts remain. Pipeline business failures are already terminal on the
// request itself, so the job simply fails.
//
// On startup Run returns every job left running by a previous process to the
// queue. Jobs interrupted by shutdown are left running for the same reason.
package queue
