package core

import (
	"context"
	"reflect"
)

// Request is implemented by endpoint request types that validate themselves.
type Request interface {
	Validate() error
}

type Response any

// HandlerInterface is the generic contract of an endpoint handler.
type HandlerInterface[R Request, Res Response] interface {
	Handle(ctx context.Context, req R) (Res, error)
}

// HandlerFunc is the type-erased form a Server stores.
type HandlerFunc func(ctx context.Context, req any) (any, error)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Server is the HTTP surface run next to the scheduler.
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
	Use(middleware ...Middleware)
	Register(method, path string, handler HandlerFunc, reqFactory func() any)
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type BaseResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// RegisterEndpoint registers a typed handler on server.
func RegisterEndpoint[R Request, Res Response](server Server, method, path string, handler HandlerInterface[R, Res]) {
	adapter := func(ctx context.Context, req any) (any, error) {
		// The factory hands out *R for value request types.
		if p, ok := req.(*R); ok {
			return handler.Handle(ctx, *p)
		}
		return handler.Handle(ctx, req.(R))
	}
	server.Register(method, path, adapter, requestFactory[R]())
}

// EndpointFunc adapts a plain function to HandlerInterface.
type EndpointFunc[R Request, Res Response] func(ctx context.Context, req R) (Res, error)

func (f EndpointFunc[R, Res]) Handle(ctx context.Context, req R) (Res, error) {
	return f(ctx, req)
}

func requestFactory[R Request]() func() any {
	return func() any {
		t := reflect.TypeOf((*R)(nil)).Elem()
		if t.Kind() == reflect.Ptr {
			return reflect.New(t.Elem()).Interface()
		}
		return reflect.New(t).Interface()
	}
}
