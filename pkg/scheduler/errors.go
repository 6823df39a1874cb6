package scheduler

// ErrRunFailed matches any RunError in an errors.Is chain.
var ErrRunFailed = &RunError{}

// A RunError wraps the error from a failed run.
type RunError struct {
	Err error
}

func (e *RunError) Error() string {
	reason := "unknown reason"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return "run failed: " + reason
}

func (e *RunError) Is(err error) bool {
	return err == ErrRunFailed
}

func (e *RunError) Unwrap() error {
	return e.Err
}
