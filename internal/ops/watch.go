package ops

import (
	"io/fs"
	"os"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
)

const watchBuffer = 1024

type fsEvent struct {
	Kind  string   `json:"kind"`
	Paths []string `json:"paths"`
}

func eventKind(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return "remove"
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return "modify"
	default:
		return "any"
	}
}

type watchResource struct {
	w         *fsnotify.Watcher
	recursive bool
	events    chan fsEvent
	done      chan struct{}
	once      sync.Once
	logger    *zap.Logger
}

func (r *watchResource) Name() string { return "fsEvents" }

func (r *watchResource) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.w.Close()
	})
	return err
}

func (r *watchResource) add(path string) error {
	if !r.recursive {
		return r.w.Add(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return r.w.Add(path)
	}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		return r.w.Add(p)
	})
}

func (r *watchResource) pump() {
	for {
		select {
		case ev, ok := <-r.w.Events:
			if !ok {
				return
			}
			if r.recursive && ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					r.add(ev.Name)
				}
			}
			select {
			case r.events <- fsEvent{Kind: eventKind(ev.Op), Paths: []string{ev.Name}}:
			case <-r.done:
				return
			}
		case err, ok := <-r.w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("fs watcher error", zap.Error(err))
		case <-r.done:
			return
		}
	}
}

type watchArgs struct {
	Paths     []string `json:"paths" validate:"required,min=1,dive,required"`
	Recursive bool     `json:"recursive"`
}

func opFsWatch(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a watchArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	for _, p := range a.Paths {
		if err := s.Perms.CheckRead(p); err != nil {
			return nil, err
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r := &watchResource{
		w:         w,
		recursive: a.Recursive,
		events:    make(chan fsEvent, watchBuffer),
		done:      make(chan struct{}),
		logger:    s.Logger,
	}
	for _, p := range a.Paths {
		if err := r.add(p); err != nil {
			w.Close()
			return nil, err
		}
	}
	go r.pump()

	return immediate(map[string]uint32{"rid": s.Resources.Add(r)})
}

type watchPollArgs struct {
	codec.AsyncArgs
	RID uint32 `json:"rid" validate:"required"`
}

// opFsEventsPoll settles with the next event, or null once the watcher is
// closed.
func opFsEventsPoll(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a watchPollArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := requireAsync("op_fs_events_poll", a.AsyncArgs); err != nil {
		return nil, err
	}
	r, err := GetAs[*watchResource](s.Resources, a.RID)
	if err != nil {
		return nil, err
	}

	fut := future.New[any]()
	go func() {
		select {
		case ev := <-r.events:
			fut.Complete(ev, nil)
		case <-r.done:
			fut.Complete(nil, nil)
		}
	}()
	return dispatch.Deferred{Future: fut}, nil
}
