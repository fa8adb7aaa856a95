package types

import (
	"context"
	"time"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }

type Requester interface {
	Do(ctx context.Context, req *Request, out interface{}) error
}

type Request struct {
	// Name labels metrics and logs, e.g. "tickets.detail".
	Name    string
	Method  string
	Path    string
	Query   map[string]string
	Body    interface{}
	Form    *MultipartForm
	Auth    bool
	Options *CallOptions
}

type CallOptions struct {
	Timeout time.Duration
	Retry   int
	Headers map[string]string
}

// MultipartForm is a multipart/form-data body with at most one file part.
type MultipartForm struct {
	Fields    map[string]string
	FileField string
	FileName  string
	FileData  []byte
}
