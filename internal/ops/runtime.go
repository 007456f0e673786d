package ops

import (
	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

func immediate(v any) (dispatch.Outcome, error) {
	return dispatch.Immediate{Value: v}, nil
}

func opStart(s *State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return immediate(s.Start)
}

func opMetrics(s *State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	if s.metrics == nil {
		return immediate(map[string]any{})
	}
	return immediate(s.metrics())
}

type versionArgs struct {
	Version    string `json:"version" validate:"required"`
	Constraint string `json:"constraint" validate:"required"`
}

func opVersionSatisfies(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a versionArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	c, err := semver.NewConstraint(a.Constraint)
	if err != nil {
		return nil, operror.Newf(operror.KindTypeError, "invalid constraint %q: %v", a.Constraint, err)
	}
	v, err := semver.NewVersion(a.Version)
	if err != nil {
		return nil, operror.Newf(operror.KindTypeError, "invalid version %q: %v", a.Version, err)
	}
	return immediate(c.Check(v))
}

func opOSRelease(_ *State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	release, err := osRelease()
	if err != nil {
		return nil, err
	}
	return immediate(release)
}

func opRandomUUID(_ *State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return immediate(uuid.NewString())
}

type ridArgs struct {
	RID uint32 `json:"rid" validate:"required"`
}

func opClose(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a ridArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Resources.Close(a.RID); err != nil {
		return nil, err
	}
	return immediate(nil)
}

func opResources(s *State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return immediate(s.Resources.Entries())
}
