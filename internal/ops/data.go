package ops

import (
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/saintfish/chardet"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type textArgs struct {
	Text string `json:"text"`
}

func opParseYAML(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a textArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	var v any
	if err := yaml.Unmarshal([]byte(a.Text), &v); err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "parse yaml: %v", err)
	}
	return immediate(v)
}

type stringifyArgs struct {
	Value any `json:"value"`
}

func opStringifyYAML(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a stringifyArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(a.Value)
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "stringify yaml: %v", err)
	}
	return immediate(string(out))
}

func opParseTOML(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a textArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	v := map[string]any{}
	if err := toml.Unmarshal([]byte(a.Text), &v); err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "parse toml: %v", err)
	}
	return immediate(v)
}

type encodingResult struct {
	Charset    string `json:"charset"`
	Language   string `json:"language"`
	Confidence int    `json:"confidence"`
}

// opDetectEncoding guesses the charset of the zero-copy buffer, or of the
// text argument when no buffer is passed.
func opDetectEncoding(_ *State, args codec.Args, zeroCopy []byte) (dispatch.Outcome, error) {
	var a textArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	data := zeroCopy
	if data == nil {
		data = []byte(a.Text)
	}
	if len(data) == 0 {
		return nil, operror.TypeError("no input to detect")
	}

	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "detect encoding: %v", err)
	}
	return immediate(encodingResult{
		Charset:    strings.ToLower(res.Charset),
		Language:   res.Language,
		Confidence: res.Confidence,
	})
}
