package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a figure or remote conversation is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput covers missing required fields and unmet prerequisites.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRemoteTimeout means a run was polled past its deadline and cancelled.
	ErrRemoteTimeout = errors.New("remote run timed out")
	// ErrRemoteRunFailed means a run reached a terminal status other than completed.
	ErrRemoteRunFailed = errors.New("remote run failed")
	// ErrNoReply means the conversation had no messages to read.
	ErrNoReply = errors.New("no reply")
	// ErrFetchFailed means an image source could not be fetched or decoded.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrUploadFailed means the remote file upload was rejected.
	ErrUploadFailed = errors.New("upload failed")
	// ErrBusy means the slot or follow-up session already has work in flight.
	ErrBusy = errors.New("busy")

	ErrNoInstructions = fmt.Errorf("%w: no instructions for either variant; generate instructions first", ErrInvalidInput)
)

// Kind returns the taxonomy sentinel err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{
		ErrNotFound, ErrInvalidInput, ErrRemoteTimeout, ErrRemoteRunFailed,
		ErrNoReply, ErrFetchFailed, ErrUploadFailed, ErrBusy,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether a remote workflow attempt that failed with err
// may be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemoteTimeout) || errors.Is(err, ErrRemoteRunFailed)
}
