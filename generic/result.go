package generic

import "fmt"

// Result carries the (T, error) pair of a fallible call as a single value, e.g. across a channel.
type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value as a Result[T].
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

// Ok wraps a value as a successful Result[T].
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err wraps an error as a failed Result[T].
func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

// Parts splits the Result[T] back into the usual (T, error) pair.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

// Expect returns the value, or panics with msg wrapping the error.
func (r Result[T]) Expect(msg string) T {
	if r.IsErr() {
		panic(fmt.Errorf("%s: %w", msg, r.Error))
	}
	return r.Value
}

// Unwrap is a shortcut for NewResult(...).Expect(...), for values that "can't" fail.
func Unwrap[T any](value T, err error) T {
	return NewResult(value, err).Expect("tried to Unwrap() an Err")
}

// Unwrap_ is like Unwrap, but for calls that return only an error.
func Unwrap_(err error) {
	NewResult(NewVoid(), err).Expect("tried to Unwrap() an Err")
}
