package codec

import (
	"bytes"
	"reflect"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

// api is encoding/json compatible: sorted map keys and HTML escaping.
var api = sonic.ConfigStd

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Request is a decoded request envelope. It lives for one dispatch.
type Request struct {
	PromiseID *uint64
	Args      Args
}

// IsSync reports whether the caller waits for an immediate reply.
func (r *Request) IsSync() bool {
	return r.PromiseID == nil
}

// AsyncArgs is embedded by op argument structs that need to know the
// caller's synchronicity (e.g. to choose the blocking bridge mode).
type AsyncArgs struct {
	PromiseID *uint64 `json:"promiseId,omitempty"`
}

// IsSync reports whether the call carried no promiseId.
func (a AsyncArgs) IsSync() bool {
	return a.PromiseID == nil
}

type envelopeHead struct {
	PromiseID *uint64 `json:"promiseId"`
}

// DecodeRequest decodes control far enough to extract the correlation id.
// The returned Args alias control.
func DecodeRequest(control []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(control)
	if len(trimmed) == 0 {
		return nil, operror.New(operror.KindUnexpectedEOF, "invalid request envelope: empty control buffer")
	}
	if trimmed[0] != '{' {
		return nil, operror.InvalidData("invalid request envelope: expected a JSON object")
	}

	var head envelopeHead
	if err := api.Unmarshal(trimmed, &head); err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "invalid request envelope: %v", err)
	}

	return &Request{PromiseID: head.PromiseID, Args: Args(control)}, nil
}

// Args holds the raw control object of a request. Handlers bind it into the
// argument shape they expect.
type Args []byte

// Bind decodes the arguments into v and validates struct tags. Any failure
// is an argument validation error (TypeError kind).
func (a Args) Bind(v any) error {
	if err := api.Unmarshal(a, v); err != nil {
		return operror.Newf(operror.KindTypeError, "invalid arguments: %v", err)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	if err := validatorInstance().Struct(v); err != nil {
		return operror.Newf(operror.KindTypeError, "invalid arguments: %v", err)
	}
	return nil
}

// Value decodes the arguments as a generic JSON object.
func (a Args) Value() (map[string]any, error) {
	var m map[string]any
	if err := api.Unmarshal(a, &m); err != nil {
		return nil, operror.Newf(operror.KindTypeError, "invalid arguments: %v", err)
	}
	return m, nil
}

// String returns the raw control text.
func (a Args) String() string {
	return string(a)
}
