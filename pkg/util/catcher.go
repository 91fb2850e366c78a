package util

import "github.com/pkg/errors"

// TryCatchBlock represents struct for try-catch-finally control flow
type TryCatchBlock struct {
	Try     func()
	Catch   func(error)
	Finally func()
}

// Do executes TryCatchBlock control flow, handing any recovered panic to Catch
func (tcf TryCatchBlock) Do() {
	if tcf.Finally != nil {
		defer tcf.Finally()
	}
	if tcf.Catch != nil {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = errors.Errorf("%v", r)
				}
				tcf.Catch(err)
			}
		}()
	}
	tcf.Try()
}

// CatchErrs runs fn and turns a panic inside it into a returned error.
// The ble stack panics on some HCI failures, so calls into it go through here.
func CatchErrs(fn func() error) error {
	var err error
	TryCatchBlock{
		Try: func() { err = fn() },
		Catch: func(e error) {
			err = errors.Wrap(e, "recovered panic")
		},
	}.Do()
	return err
}
