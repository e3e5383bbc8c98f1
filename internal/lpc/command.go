// Package lpc ("local procedure call") carries typed requests to a long-running goroutine over a Go channel, and
// carries the typed response back.
package lpc

import (
	"errors"

	"github.com/alanbriolat/video-grabber/generic"
	"github.com/alanbriolat/video-grabber/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

// Command is one request/response exchange. Distinct Arg/Response instantiations are distinct types, so the
// receiving goroutine can dispatch on them with a type switch.
type Command[Arg any, Response any] struct {
	initialized bool
	arg         Arg
	response    generic.Result[Response]
	done        sync_.Event
}

// New is called on a nil pointer of the desired instantiation, e.g. (*Command[int, string])(nil).New(1).
func (*Command[Arg, Response]) New(arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		initialized: true,
		arg:         arg,
		response:    generic.Err[Response](ErrNoResponse),
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	return c.arg
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	return c.respond(generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	return c.respond(generic.Err[Response](err))
}

func (c *Command[Arg, Response]) respond(result generic.Result[Response]) error {
	c.mustBeInitialized("respond")
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = result
	c.done.Set()
	return nil
}

// Wait blocks until the command is answered or closed.
func (c *Command[Arg, Response]) Wait() (Response, error) {
	c.mustBeInitialized("Wait")
	<-c.done.Wait()
	return c.response.Parts()
}

// Close ends the command without a response; Wait will then return ErrNoResponse.
func (c *Command[Arg, Response]) Close() {
	c.mustBeInitialized("Close")
	c.done.Set()
}

func (c *Command[Arg, Response]) mustBeInitialized(method string) {
	if c == nil || !c.initialized {
		panic("attempted to " + method + " an uninitialized Command, must use .New() first")
	}
}
