// Package command defines the immutable unit of work accepted by the sender.
//
// A Command pairs an execution step, invoked once against the remote Bot API
// capability, with an optional callback that receives the execution Result.
// The two shapes are distinct variants: commands built with New never carry a
// callback, commands built with WithCallback always do.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/vincentruan/telegram-spring-bot/internal/command API

// API is the remote capability a command executes against.
type API interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// ExecFunc performs the remote operation of a command.
type ExecFunc func(ctx context.Context, api API) (json.RawMessage, error)

// Callback receives the outcome of a command's execution.
type Callback func(Result)

// Result is the outcome of one execution. Err is non-nil when the execution
// failed; callbacks run in both cases.
type Result struct {
	CommandID string
	Name      string
	Value     json.RawMessage
	Err       error
	Duration  time.Duration
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Err == nil }

var ErrNoExec = errors.New("command has no exec func")

// Command is immutable after construction.
type Command struct {
	id       string
	name     string
	exec     ExecFunc
	callback Callback
}

// New builds a command without a callback.
func New(name string, exec ExecFunc) Command {
	return Command{
		id:   uuid.NewString(),
		name: name,
		exec: exec,
	}
}

// WithCallback builds a command whose callback runs after execution. A nil
// callback yields the same variant as New.
func WithCallback(name string, exec ExecFunc, cb Callback) Command {
	c := New(name, exec)
	c.callback = cb
	return c
}

func (c Command) ID() string   { return c.id }
func (c Command) Name() string { return c.name }

// HasCallback reports whether completing this command schedules callback work.
func (c Command) HasCallback() bool { return c.callback != nil }

// Validate checks that the command can be executed.
func (c Command) Validate() error {
	if c.exec == nil {
		return ErrNoExec
	}
	return nil
}

// Execute runs the command's exec step.
func (c Command) Execute(ctx context.Context, api API) (json.RawMessage, error) {
	if c.exec == nil {
		return nil, ErrNoExec
	}
	return c.exec(ctx, api)
}

// RunCallback delivers res to the callback, if any.
func (c Command) RunCallback(res Result) {
	if c.callback != nil {
		c.callback(res)
	}
}

func (c Command) String() string {
	return fmt.Sprintf("Command{id=%s name=%s callback=%t}", c.id, c.name, c.HasCallback())
}

// Call returns an ExecFunc invoking a single Bot API method.
func Call(method string, params any) ExecFunc {
	return func(ctx context.Context, api API) (json.RawMessage, error) {
		if api == nil {
			return nil, fmt.Errorf("call %s: api is nil", method)
		}
		return api.Call(ctx, method, params)
	}
}

// NewCall builds a command invoking method with params. cb may be nil.
func NewCall(method string, params any, cb Callback) Command {
	return WithCallback(method, Call(method, params), cb)
}
