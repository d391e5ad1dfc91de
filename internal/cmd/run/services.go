package run

import (
	"context"
	"errors"

	"github.com/wasm-everything/we/host"
)

// Arg and Reply are the payloads of math/add_one.
type Arg struct {
	Foo int `json:"foo"`
}

type Reply struct {
	Bar int `json:"bar"`
}

// EchoArg is the payload of host/echo, answered unchanged.
type EchoArg struct {
	Message string `json:"message"`
}

var errEmpty = errors.New("empty message")

func addOne(_ context.Context, a Arg) (Reply, error) {
	return Reply{Bar: a.Foo + 1}, nil
}

func echo(_ context.Context, a EchoArg) (EchoArg, error) {
	if a.Message == "" {
		return EchoArg{}, errEmpty
	}
	return a, nil
}

func services(opts ...host.ServiceOption) (*host.Services, error) {
	return host.NewServices(append([]host.ServiceOption{
		host.WithHandler("math", "add_one", host.NewHandler(addOne)),
		host.WithHandler("host", "echo", host.NewHandler(echo)),
	}, opts...)...)
}
