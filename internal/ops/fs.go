package ops

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type pathArgs struct {
	codec.AsyncArgs
	Path string `json:"path" validate:"required"`
}

type fileContents struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

func opReadFile(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a pathArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRead(a.Path); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, err
		}
		return fileContents{
			Data:     data,
			MimeType: mimetype.Detect(data).String(),
			Size:     len(data),
		}, nil
	})
}

func opReadTextFile(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a pathArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRead(a.Path); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
}

type writeFileArgs struct {
	codec.AsyncArgs
	Path   string  `json:"path" validate:"required"`
	Data   *string `json:"data"`
	Append bool    `json:"append"`
	Create *bool   `json:"create"`
	Mode   *uint32 `json:"mode"`
}

// opWriteFile writes the zero-copy buffer, or the data string when no buffer
// accompanies the call.
func opWriteFile(s *State, args codec.Args, zeroCopy []byte) (dispatch.Outcome, error) {
	var a writeFileArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckWrite(a.Path); err != nil {
		return nil, err
	}

	payload := zeroCopy
	if payload == nil && a.Data != nil {
		payload = []byte(*a.Data)
	}

	flags := os.O_WRONLY
	if a.Create == nil || *a.Create {
		flags |= os.O_CREATE
	}
	if a.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	mode := fs.FileMode(0o666)
	if a.Mode != nil {
		mode = fs.FileMode(*a.Mode) & fs.ModePerm
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		f, err := os.OpenFile(a.Path, flags, mode)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(payload); err != nil {
			f.Close()
			return nil, err
		}
		return nil, f.Close()
	})
}

type statArgs struct {
	codec.AsyncArgs
	Path  string `json:"path" validate:"required"`
	Lstat bool   `json:"lstat"`
}

type fileInfo struct {
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymlink"`
	Size        int64  `json:"size"`
	Mtime       int64  `json:"mtime"`
	Mode        uint32 `json:"mode"`
}

func toFileInfo(info fs.FileInfo) fileInfo {
	return fileInfo{
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
		IsSymlink:   info.Mode()&fs.ModeSymlink != 0,
		Size:        info.Size(),
		Mtime:       info.ModTime().UnixMilli(),
		Mode:        uint32(info.Mode().Perm()),
	}
}

func opStat(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a statArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRead(a.Path); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		stat := os.Stat
		if a.Lstat {
			stat = os.Lstat
		}
		info, err := stat(a.Path)
		if err != nil {
			return nil, err
		}
		return toFileInfo(info), nil
	})
}

type dirEntry struct {
	Name        string `json:"name"`
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymlink"`
}

func opReadDir(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a pathArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRead(a.Path); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		entries, err := os.ReadDir(a.Path)
		if err != nil {
			return nil, err
		}
		out := make([]dirEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, dirEntry{
				Name:        e.Name(),
				IsFile:      e.Type().IsRegular(),
				IsDirectory: e.IsDir(),
				IsSymlink:   e.Type()&fs.ModeSymlink != 0,
			})
		}
		return out, nil
	})
}

type mkdirArgs struct {
	codec.AsyncArgs
	Path      string  `json:"path" validate:"required"`
	Recursive bool    `json:"recursive"`
	Mode      *uint32 `json:"mode"`
}

func opMkdir(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a mkdirArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckWrite(a.Path); err != nil {
		return nil, err
	}

	mode := fs.FileMode(0o777)
	if a.Mode != nil {
		mode = fs.FileMode(*a.Mode) & fs.ModePerm
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		if a.Recursive {
			return nil, os.MkdirAll(a.Path, mode)
		}
		return nil, os.Mkdir(a.Path, mode)
	})
}

type removeArgs struct {
	codec.AsyncArgs
	Path      string `json:"path" validate:"required"`
	Recursive bool   `json:"recursive"`
}

func opRemove(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a removeArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckWrite(a.Path); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		if a.Recursive {
			if _, err := os.Lstat(a.Path); err != nil {
				return nil, err
			}
			return nil, os.RemoveAll(a.Path)
		}
		return nil, os.Remove(a.Path)
	})
}

type walkArgs struct {
	codec.AsyncArgs
	Root           string `json:"root" validate:"required"`
	MaxDepth       int    `json:"maxDepth" validate:"gte=0"`
	IncludeDirs    bool   `json:"includeDirs"`
	FollowSymlinks bool   `json:"followSymlinks"`
}

// opWalk lists every path under root, sorted. MaxDepth 0 means unlimited.
func opWalk(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a walkArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := s.Perms.CheckRead(a.Root); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		return walk(a.Root, a.MaxDepth, a.IncludeDirs, a.FollowSymlinks)
	})
}

func walk(root string, maxDepth int, includeDirs, follow bool) ([]string, error) {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		paths = []string{}
	)
	conf := fastwalk.Config{Follow: follow}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if maxDepth > 0 && depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && !includeDirs {
			return nil
		}

		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

type globArgs struct {
	codec.AsyncArgs
	Pattern string `json:"pattern" validate:"required"`
	Root    string `json:"root"`
}

// opGlob matches pattern relative to root (default ".") and returns the
// matching paths joined with root.
func opGlob(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a globArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if a.Root == "" {
		a.Root = "."
	}
	if !doublestar.ValidatePattern(a.Pattern) {
		return nil, operror.Newf(operror.KindTypeError, "invalid glob pattern %q", a.Pattern)
	}
	if err := s.Perms.CheckRead(a.Root); err != nil {
		return nil, err
	}

	return dispatch.Blocking(s.Loop, a.IsSync(), func() (any, error) {
		matches, err := doublestar.Glob(os.DirFS(a.Root), a.Pattern)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, filepath.Join(a.Root, filepath.FromSlash(m)))
		}
		sort.Strings(out)
		return out, nil
	})
}
