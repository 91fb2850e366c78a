package util

import "github.com/pkg/errors"

// Retry calls fn until it succeeds or attempts are exhausted; onRetry sees every failed attempt
func Retry(attempts int, fn func() error, onRetry func(attempt int, err error)) error {
	err := errors.New("not error")
	attempt := 0
	for err != nil && attempt < attempts {
		if attempt > 0 && onRetry != nil {
			onRetry(attempt, err)
		}
		attempt += 1
		err = CatchErrs(fn)
	}
	if err != nil {
		return errors.Wrap(err, "Exceeded attempts issue")
	}
	return nil
}
