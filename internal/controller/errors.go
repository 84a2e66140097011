package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrRunSealed is returned for capability calls requested after Synthesis was entered.
	ErrRunSealed = errors.New("run is sealed: synthesis already entered")

	// ErrUnknownToken is returned when a continuation token does not exist or was already used.
	ErrUnknownToken = errors.New("unknown or consumed continuation token")

	// ErrWrongResumeKind is returned when the answer does not match what the run is waiting for.
	ErrWrongResumeKind = errors.New("answer does not match the pending request")
)

func unknownToken(token string) error {
	return fmt.Errorf("%w: %s", ErrUnknownToken, token)
}
