package ops

import (
	"context"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/httpclient"
)

// Version of the bridge reported to scripts.
const Version = "0.4.0"

// Versions reported by op_start.
type Versions struct {
	Opbridge string `json:"opbridge"`
	Go       string `json:"go"`
	Engine   string `json:"engine"`
}

// StartInfo is the bootstrap record scripts read through op_start.
type StartInfo struct {
	PID      int      `json:"pid"`
	PPID     int      `json:"ppid"`
	Cwd      string   `json:"cwd"`
	Args     []string `json:"args"`
	NoColor  bool     `json:"noColor"`
	Unstable bool     `json:"unstable"`
	Target   string   `json:"target"`
	Versions Versions `json:"versions"`
}

// DefaultStartInfo describes the current process.
func DefaultStartInfo(args []string) StartInfo {
	cwd, _ := os.Getwd()
	if args == nil {
		args = []string{}
	}
	_, noColorEnv := os.LookupEnv("NO_COLOR")
	return StartInfo{
		PID:     os.Getpid(),
		PPID:    os.Getppid(),
		Cwd:     cwd,
		Args:    args,
		NoColor: noColorEnv || !term.IsTerminal(int(os.Stdout.Fd())),
		Target:  runtime.GOOS + "-" + runtime.GOARCH,
		Versions: Versions{
			Opbridge: Version,
			Go:       runtime.Version(),
			Engine:   "goja",
		},
	}
}

// State is the execution context handle every op receives.
type State struct {
	Loop      *executor.Loop
	Resources *ResourceTable
	Perms     *Permissions
	Start     StartInfo
	HTTP      *httpclient.Client
	Logger    *zap.Logger

	metrics func() any

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// StateOption configures a State.
type StateOption func(*State)

// WithPermissions sets the permission set; the default denies everything.
func WithPermissions(p *Permissions) StateOption {
	return func(s *State) {
		if p != nil {
			s.Perms = p
		}
	}
}

// WithStartInfo sets the record returned by op_start.
func WithStartInfo(info StartInfo) StateOption {
	return func(s *State) { s.Start = info }
}

// WithHTTPClient sets the client used by op_fetch and op_download.
func WithHTTPClient(c *httpclient.Client) StateOption {
	return func(s *State) {
		if c != nil {
			s.HTTP = c
		}
	}
}

// WithLogger sets the op logger.
func WithLogger(logger *zap.Logger) StateOption {
	return func(s *State) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithMetricsSource sets the function op_metrics reports.
func WithMetricsSource(fn func() any) StateOption {
	return func(s *State) { s.metrics = fn }
}

// NewState creates the context handle for ops running on loop.
func NewState(loop *executor.Loop, opts ...StateOption) *State {
	ctx, cancel := context.WithCancel(context.Background())
	s := &State{
		Loop:      loop,
		Resources: NewResourceTable(),
		Perms:     NewPermissions(PermissionSet{}),
		Logger:    zap.NewNop(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.HTTP == nil {
		o := httpclient.DefaultOptions()
		o.Logger = s.Logger
		s.HTTP = httpclient.New(o)
	}
	if s.Start.Versions.Opbridge == "" {
		s.Start = DefaultStartInfo(nil)
	}
	return s
}

// Context is cancelled when the state is closed. Network ops bind to it.
func (s *State) Context() context.Context {
	return s.ctx
}

// Close cancels outstanding network work and closes every resource.
func (s *State) Close() {
	s.once.Do(func() {
		s.cancel()
		s.Resources.CloseAll()
	})
}
