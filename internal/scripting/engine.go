package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// APIVersion is exposed to scripts as the API_VERSION global.
const APIVersion = 1

// Engine is a fixed pool of gopher-lua VMs loaded with the same scripts.
// An LState is not goroutine-safe, so each caller borrows one VM for the
// duration of a call.
type Engine struct {
	states chan *lua.LState
	all    []*lua.LState
	log    *zap.Logger
}

// Source is one script to load into every VM.
type Source struct {
	Name string
	Code string
}

// NewEngine creates size VMs and loads every .lua file in each of the
// given paths. A path may name a file or a directory.
func NewEngine(paths []string, size int, log *zap.Logger) (*Engine, error) {
	var sources []Source
	for _, p := range paths {
		srcs, err := readSources(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, srcs...)
	}
	return NewEngineFromSources(sources, size, log)
}

// NewEngineFromSources is NewEngine for scripts already in memory.
func NewEngineFromSources(sources []Source, size int, log *zap.Logger) (*Engine, error) {
	if size < 1 {
		size = 1
	}
	e := &Engine{
		states: make(chan *lua.LState, size),
		log:    log,
	}
	for i := 0; i < size; i++ {
		L := lua.NewState()
		L.SetGlobal("API_VERSION", lua.LNumber(APIVersion))
		for _, src := range sources {
			if err := L.DoString(src.Code); err != nil {
				L.Close()
				e.Close()
				return nil, fmt.Errorf("load %s: %w", src.Name, err)
			}
		}
		e.all = append(e.all, L)
		e.states <- L
	}
	for _, src := range sources {
		log.Debug("loaded lua script", zap.String("file", src.Name))
	}
	return e, nil
}

func readSources(path string) ([]Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return []Source{{Name: path, Code: string(code)}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []Source
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		full := filepath.Join(path, entry.Name())
		code, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", full, err)
		}
		out = append(out, Source{Name: full, Code: string(code)})
	}
	return out, nil
}

// Size returns the number of VMs.
func (e *Engine) Size() int {
	return len(e.all)
}

// With borrows a VM, runs fn on it, and returns it to the pool. It blocks
// until a VM is free or ctx is done.
func (e *Engine) With(ctx context.Context, fn func(L *lua.LState) error) error {
	var L *lua.LState
	select {
	case L = <-e.states:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		L.SetTop(0)
		e.states <- L
	}()
	L.SetContext(ctx)
	defer L.RemoveContext()
	return fn(L)
}

// Call invokes the global function name with args and returns its single
// result. The result must not be retained after the VM is returned, so
// callers convert it inside fn.
func (e *Engine) Call(ctx context.Context, name string, args []lua.LValue, fn func(ret lua.LValue) error) error {
	return e.With(ctx, func(L *lua.LState) error {
		f := L.GetGlobal(name)
		if f == lua.LNil {
			return fmt.Errorf("lua function %s not found", name)
		}
		if err := L.CallByParam(lua.P{
			Fn:      f,
			NRet:    1,
			Protect: true,
		}, args...); err != nil {
			return fmt.Errorf("lua %s: %w", name, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		return fn(ret)
	})
}

// Close shuts every VM down. The engine must not be used afterwards.
func (e *Engine) Close() {
	for _, L := range e.all {
		L.Close()
	}
	e.all = nil
}
