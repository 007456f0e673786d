package ops

import (
	"os"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/httpclient"
)

type fetchArgs struct {
	codec.AsyncArgs
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS get head post put patch delete options"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// opFetch performs an HTTP request. The zero-copy buffer, when present, is
// the request body.
func opFetch(s *State, args codec.Args, zeroCopy []byte) (dispatch.Outcome, error) {
	var a fetchArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := requireAsync("op_fetch", a.AsyncArgs); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckNet(a.URL); err != nil {
		return nil, err
	}

	req := httpclient.Request{Method: a.Method, URL: a.URL, Headers: a.Headers, Body: zeroCopy}
	if req.Body == nil && a.Body != nil {
		req.Body = []byte(*a.Body)
	}
	ctx := s.Context()

	fut := s.Loop.SpawnBlocking(func() (any, error) {
		return s.HTTP.Do(ctx, req)
	})
	return dispatch.Deferred{Future: fut}, nil
}

type downloadArgs struct {
	codec.AsyncArgs
	URL  string `json:"url" validate:"required,url"`
	Path string `json:"path" validate:"required"`
}

type downloadResult struct {
	Bytes int64 `json:"bytes"`
}

func opDownload(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a downloadArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckNet(a.URL); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckWrite(a.Path); err != nil {
		return nil, err
	}
	ctx := s.Context()

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		f, err := os.Create(a.Path)
		if err != nil {
			return nil, err
		}
		n, err := s.HTTP.Download(ctx, a.URL, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(a.Path)
			return nil, err
		}
		return downloadResult{Bytes: n}, nil
	})
}
