package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type okEnvelope struct {
	Ok        any     `json:"ok"`
	PromiseID *uint64 `json:"promiseId"`
}

type errEnvelope struct {
	Err       *operror.Error `json:"err"`
	PromiseID *uint64        `json:"promiseId"`
}

// fallbackErr is written if even the error envelope cannot be produced.
var fallbackErr = []byte(`{"err":{"message":"failed to encode op response","kind":24},"promiseId":null}`)

// Encode serializes a result into a response envelope. A non-nil err wins
// over value and is normalized through operror.From.
func Encode(promiseID *uint64, value any, err error) []byte {
	if err != nil {
		return encodeErr(promiseID, operror.From(err))
	}

	buf, merr := api.Marshal(okEnvelope{Ok: value, PromiseID: promiseID})
	if merr != nil {
		return encodeErr(promiseID, operror.Newf(operror.KindInvalidData, "failed to serialize op result: %v", merr))
	}
	return buf
}

// EncodeOk is Encode for a successful value.
func EncodeOk(promiseID *uint64, value any) []byte {
	return Encode(promiseID, value, nil)
}

// EncodeErr is Encode for a failure.
func EncodeErr(promiseID *uint64, err error) []byte {
	return Encode(promiseID, nil, err)
}

var errPrefix = []byte(`{"err"`)

// IsErr reports whether an encoded envelope carries an error. It relies on
// the discriminant always being written first.
func IsErr(buf []byte) bool {
	return bytes.HasPrefix(buf, errPrefix)
}

func encodeErr(promiseID *uint64, rec *operror.Error) []byte {
	buf, err := api.Marshal(errEnvelope{Err: rec, PromiseID: promiseID})
	if err != nil {
		return fallbackErr
	}
	return buf
}

// Response is a decoded response envelope.
type Response struct {
	Ok        json.RawMessage
	Err       *operror.Error
	PromiseID *uint64
}

// IsOk reports whether the response carries a value.
func (r *Response) IsOk() bool {
	return r.Err == nil
}

// Into decodes the ok value into v.
func (r *Response) Into(v any) error {
	if r.Err != nil {
		return r.Err
	}
	return api.Unmarshal(r.Ok, v)
}

var errNoDiscriminant = errors.New("response envelope has neither ok nor err")

// DecodeResponse is the inverse of Encode.
func DecodeResponse(buf []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := api.Unmarshal(buf, &fields); err != nil {
		return nil, fmt.Errorf("invalid response envelope: %w", err)
	}

	resp := &Response{}
	if raw, ok := fields["promiseId"]; ok {
		if err := api.Unmarshal(raw, &resp.PromiseID); err != nil {
			return nil, fmt.Errorf("invalid response promiseId: %w", err)
		}
	}

	if raw, ok := fields["err"]; ok {
		var rec operror.Error
		if err := api.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("invalid response error: %w", err)
		}
		resp.Err = &rec
		return resp, nil
	}

	raw, ok := fields["ok"]
	if !ok {
		return nil, errNoDiscriminant
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	resp.Ok = raw
	return resp, nil
}
