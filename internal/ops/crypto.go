package ops

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type hashArgs struct {
	codec.AsyncArgs
	Password string `json:"password" validate:"required,max=72"`
	Cost     int    `json:"cost" validate:"omitempty,min=4,max=31"`
}

func opHashPassword(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a hashArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	cost := a.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return nil, err
		}
		return string(hash), nil
	})
}

type verifyArgs struct {
	codec.AsyncArgs
	Password string `json:"password" validate:"required"`
	Hash     string `json:"hash" validate:"required"`
}

func opVerifyPassword(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a verifyArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		err := bcrypt.CompareHashAndPassword([]byte(a.Hash), []byte(a.Password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return nil, operror.Newf(operror.KindInvalidData, "invalid hash: %v", err)
		}
	})
}
