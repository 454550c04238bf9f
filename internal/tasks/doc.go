// Package tasks runs the background work of the lyrics library.
//
// # Fetch pipeline
//
// [FetchPipeline] retrieves lyrics for songs saved without them. It implements
// library.Enqueuer: the song service hands it new songs, it enqueues a job on a [queue.Queue],
// and a worker later runs [FetchPipeline.Handle] for that job:
//
//  1. A song that no longer exists drops the job.
//  2. A song that already has lyrics is marked done without writing.
//  3. The provider is called under the configured timeout.
//  4. "No lyrics" marks the song failed without retrying.
//  5. Other errors are retried with exponential backoff; the last attempt marks the song failed.
//  6. Fetched text is cleaned and stored as version 1, and the song is marked done in the same
//     transaction. If the user saved lyrics in the meantime, the fetched text is discarded.
//
// # Progress Reporting
//
// The pipeline reports each step as a [ProgressUpdate] on an optional channel.
// Updates use select with default so a slow reader never blocks a worker.
package tasks
