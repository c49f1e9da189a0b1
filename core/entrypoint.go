package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
)

// ServeDebug exposes expvar, /debug/metrics and anything else registered on the default mux.
func ServeDebug(addr string, log *slog.Logger) {
	go func() {
		err := http.ListenAndServe(addr, nil)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("debug server stopped", "err", err)
		}
	}()
}

// Start brings up every router described by cfg in this process and returns once they are running.
// The network runs until ctx is done or Stop is called, use Wait to collect the final state.
func Start(ctx context.Context, cfg state.NetworkCfg, logger *slog.Logger) (*Fabric, error) {
	state.ExpandNetworkConfig(&cfg)
	err := state.NetworkConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}

	f := newFabric(ctx, cfg, logger)
	for _, rcfg := range cfg.Routers {
		s := f.newNodeState(rcfg.Id)
		err = initModules(s, &NodeRouter{fabric: f})
		if err != nil {
			f.Stop(err)
			f.Wait()
			return nil, err
		}
		f.nodes[rcfg.Id] = s
	}

	for _, s := range f.nodes {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			MainLoop(s, s.DispatchChannel)
		}()
	}

	links, err := cfg.ExpandLinks()
	if err != nil {
		f.Stop(err)
		f.Wait()
		return nil, err
	}
	for _, link := range links {
		_, _, err = f.AddLink(link.A, link.B, link.Cost, time.Duration(link.Latency)*time.Millisecond)
		if err != nil {
			f.Stop(err)
			f.Wait()
			return nil, err
		}
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.runEvents(cfg.Events)
	}()

	logger.Info("network started", "routers", len(cfg.Routers), "heartbeat", cfg.Heartbeat)
	return f, nil
}

func initModules(s *state.State, modules ...state.NyModule) error {
	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// MainLoop runs dispatched functions for one node until its context is done.
func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
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
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Debug("stopped")
}
