package ops

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/config"
)

// PermissionSet lists the capabilities granted to scripts.
type PermissionSet struct {
	All   bool
	Read  []string
	Write []string
	Net   []string
	Run   bool
}

// FromConfig converts the environment permission settings.
func FromConfig(cfg config.PermissionConfig) PermissionSet {
	return PermissionSet{
		All:   cfg.AllowAll,
		Read:  cfg.AllowRead,
		Write: cfg.AllowWrite,
		Net:   cfg.AllowNet,
		Run:   cfg.AllowRun,
	}
}

// Permissions checks op access against a PermissionSet.
type Permissions struct {
	all   bool
	read  []string
	write []string
	net   []string
	run   bool
}

// NewPermissions normalizes path patterns to absolute form.
func NewPermissions(set PermissionSet) *Permissions {
	return &Permissions{
		all:   set.All,
		read:  absPatterns(set.Read),
		write: absPatterns(set.Write),
		net:   lower(set.Net),
		run:   set.Run,
	}
}

// AllowAll grants every capability.
func AllowAll() *Permissions {
	return &Permissions{all: true}
}

// CheckRead fails with PermissionDenied unless path may be read.
func (p *Permissions) CheckRead(path string) error {
	if p.all || matchPath(p.read, path) {
		return nil
	}
	return operror.Newf(operror.KindPermissionDenied, "read access to %q denied", path)
}

// CheckWrite fails with PermissionDenied unless path may be written.
func (p *Permissions) CheckWrite(path string) error {
	if p.all || matchPath(p.write, path) {
		return nil
	}
	return operror.Newf(operror.KindPermissionDenied, "write access to %q denied", path)
}

// CheckNet fails with PermissionDenied unless rawURL's host is allowed. An
// entry without a port allows every port of that host.
func (p *Permissions) CheckNet(rawURL string) error {
	if p.all {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return operror.Newf(operror.KindTypeError, "invalid url %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	for _, entry := range p.net {
		h, pt, err := net.SplitHostPort(entry)
		if err != nil {
			h, pt = entry, ""
		}
		if h == host && (pt == "" || pt == port) {
			return nil
		}
	}
	return operror.Newf(operror.KindPermissionDenied, "network access to %q denied", u.Host)
}

// CheckRun fails with PermissionDenied unless subprocesses are allowed.
func (p *Permissions) CheckRun() error {
	if p.all || p.run {
		return nil
	}
	return operror.PermissionDenied("subprocess access denied")
}

func matchPath(patterns []string, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.PathMatch(pattern, abs); ok {
			return true
		}
		// Plain directories grant their whole subtree.
		if !hasMeta(pattern) && strings.HasPrefix(abs, strings.TrimSuffix(pattern, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func absPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		}
		out = append(out, p)
	}
	return out
}

func lower(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, strings.ToLower(e))
		}
	}
	return out
}
