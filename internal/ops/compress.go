package ops

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

// maxDecompressed caps decompression output.
const maxDecompressed = 256 << 20

type compressArgs struct {
	codec.AsyncArgs
	Format string  `json:"format" validate:"required,oneof=gzip zstd"`
	Level  int     `json:"level" validate:"gte=0,lte=22"`
	Data   *string `json:"data"`
}

func (a compressArgs) input(zeroCopy []byte) ([]byte, error) {
	if zeroCopy != nil {
		return zeroCopy, nil
	}
	if a.Data != nil {
		return []byte(*a.Data), nil
	}
	return nil, operror.TypeError("no input buffer")
}

// opCompress compresses the zero-copy buffer (or data string). The result is
// base64 in the response envelope.
func opCompress(s *State, args codec.Args, zeroCopy []byte) (dispatch.Outcome, error) {
	var a compressArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	src, err := a.input(zeroCopy)
	if err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		switch a.Format {
		case "gzip":
			return gzipBytes(src, a.Level)
		default:
			return zstdBytes(src, a.Level)
		}
	})
}

func opDecompress(s *State, args codec.Args, zeroCopy []byte) (dispatch.Outcome, error) {
	var a compressArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	src, err := a.input(zeroCopy)
	if err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		switch a.Format {
		case "gzip":
			return gunzipBytes(src, maxDecompressed)
		default:
			return unzstdBytes(src, maxDecompressed)
		}
	})
}

func gzipBytes(src []byte, level int) ([]byte, error) {
	if level == 0 || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(src []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "gzip: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "gzip: %v", err)
	}
	if int64(len(out)) > limit {
		return nil, operror.Newf(operror.KindInvalidData, "gzip: output exceeds %d bytes", limit)
	}
	return out, nil
}

func zstdBytes(src []byte, level int) ([]byte, error) {
	opts := []zstd.EOption{}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func unzstdBytes(src []byte, limit uint64) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "zstd: %v", err)
	}
	return out, nil
}
