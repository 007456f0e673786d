package ops

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
)

type runArgs struct {
	codec.AsyncArgs
	Cmd   []string          `json:"cmd" validate:"required,min=1,dive,required"`
	Cwd   string            `json:"cwd"`
	Env   map[string]string `json:"env"`
	Stdin *string           `json:"stdin"`
	Pty   bool              `json:"pty"`
}

type runResult struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// opRun runs a subprocess to completion. With pty the child gets a
// pseudo-terminal and its combined output is reported as stdout.
func opRun(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a runArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRun(); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		cmd := exec.Command(a.Cmd[0], a.Cmd[1:]...)
		cmd.Dir = a.Cwd
		if len(a.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range a.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		if a.Pty {
			return runPty(cmd, a.Stdin)
		}
		return runPiped(cmd, a.Stdin)
	})
}

func runPiped(cmd *exec.Cmd, stdin *string) (*runResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = strings.NewReader(*stdin)
	}

	code, err := exitCode(cmd.Run())
	if err != nil {
		return nil, err
	}
	return &runResult{Code: code, Success: code == 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func runPty(cmd *exec.Cmd, stdin *string) (*runResult, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	defer ptmx.Close()

	if stdin != nil {
		io.WriteString(ptmx, *stdin)
	}

	var out bytes.Buffer
	// Reading the master fails with EIO once the child exits.
	io.Copy(&out, ptmx)

	code, err := exitCode(cmd.Wait())
	if err != nil {
		return nil, err
	}
	return &runResult{Code: code, Success: code == 0, Stdout: out.String()}, nil
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
