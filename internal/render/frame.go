package render

// FrameQueue defers work to the next frame boundary, after the frame that
// inserted a fragment has been handed to the presentation layer.
// It is not safe for concurrent use.
type FrameQueue struct {
	jobs []func()
}

// Schedule queues fn for the next Flush.
func (q *FrameQueue) Schedule(fn func()) {
	q.jobs = append(q.jobs, fn)
}

// Len returns the number of pending jobs.
func (q *FrameQueue) Len() int {
	return len(q.jobs)
}

// Flush runs the jobs queued before the call. Jobs scheduled while flushing
// wait for the following frame. It returns the number of jobs run.
func (q *FrameQueue) Flush() int {
	jobs := q.jobs
	q.jobs = nil
	for _, job := range jobs {
		job()
	}
	return len(jobs)
}
