package core

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/rplof/perf"
	"github.com/encodeous/rplof/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

func SetupDebugging() {
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe(state.DebugAddr, nil))
		}()
	}
}

// NewLogger builds the console logger of a node, prefixed with its id. When logPath is set the
// same records are also appended to that file.
func NewLogger(id state.NodeId, logPath string, level slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: string(id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// NewState prepares the state of a node. Modules are not initialized yet.
func NewState(cfg state.NodeCfg, clock state.Clock, logger *slog.Logger) (*state.State, chan func(*state.State) error) {
	cfg.ApplyDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(env *state.State) error, 128)

	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         cfg,
			Clock:           clock,
			Log:             logger,
		},
	}
	return s, dispatch
}

// Start initializes the modules of s and runs its main loop on a new goroutine. The returned
// channel yields the result of the loop once it stops.
func Start(s *state.State, dispatch <-chan func(*state.State) error) (<-chan error, error) {
	s.Log.Debug("init modules")
	err := initModules(s)
	if err != nil {
		Stop(s)
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- MainLoop(s, dispatch)
	}()
	return done, nil
}

func initModules(s *state.State) error {
	var modules []state.NyModule
	modules = append(modules, &Trace{})
	modules = append(modules, &RplRouter{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return fmt.Errorf("failed to init %T: %w", module, err)
		}
	}
	return nil
}

// MainLoop runs dispatched functions until a nil function is received or the context ends. The
// node is stopped before returning.
func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				s.Cancel(context.Canceled)
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Debug("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	cause := context.Cause(s.Context)
	if cause == context.Canceled {
		return nil
	}
	return cause
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Debug("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Debug("stopped")
}
