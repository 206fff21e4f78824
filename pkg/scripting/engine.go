// Package scripting runs user supplied Lua scripts that can rewrite memories
// before they are stored and reorder search results before they are returned.
package scripting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/lexlapax/recall/pkg/log"
)

// ErrFunctionNotFound is returned by ExecuteFunction when no global function has the name.
var ErrFunctionNotFound = errors.New("lua function not found")

// Engine loads scripts and calls the global functions they define.
type Engine interface {
	// LoadScript runs content, registering the functions it defines
	LoadScript(name string, content []byte) error

	// LoadScriptFile loads one script from disk
	LoadScriptFile(path string) error

	// LoadScriptDir loads every .lua file in dir, in name order
	LoadScriptDir(dir string) error

	// ExecuteFunction calls a global function and returns its first result
	// converted to Go values
	ExecuteFunction(ctx context.Context, funcName string, args ...any) (any, error)

	// Close releases the interpreter
	Close() error
}

// Config configures the Lua engine.
type Config struct {
	// EnableSandboxing removes file, process and module loading access
	EnableSandboxing bool

	// ScriptTimeoutMs bounds a single function call; zero means no bound
	ScriptTimeoutMs int
}

// DefaultConfig returns a sandboxed configuration with a one second timeout.
func DefaultConfig() Config {
	return Config{
		EnableSandboxing: true,
		ScriptTimeoutMs:  1000,
	}
}

// LuaEngine is an Engine backed by a single gopher-lua state. Calls are
// serialized.
type LuaEngine struct {
	mu     sync.Mutex
	state  *lua.LState
	config Config
	loaded []string
}

// NewLuaEngine creates an engine with the API table registered.
func NewLuaEngine(cfg Config) (*LuaEngine, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: cfg.EnableSandboxing})
	if cfg.EnableSandboxing {
		if err := setupSandbox(L); err != nil {
			L.Close()
			return nil, err
		}
	}
	registerAPIFunctions(L)

	return &LuaEngine{state: L, config: cfg}, nil
}

// LoadScript implements Engine.
func (e *LuaEngine) LoadScript(name string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return errors.New("lua engine is closed")
	}
	fn, err := e.state.Load(bytes.NewReader(content), name)
	if err != nil {
		return fmt.Errorf("failed to compile script %s: %w", name, err)
	}
	defer e.state.SetTop(0)
	e.state.Push(fn)
	if err := e.state.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("failed to run script %s: %w", name, err)
	}

	e.loaded = append(e.loaded, name)
	log.Debug("Loaded Lua script", "name", name)
	return nil
}

// LoadScriptFile implements Engine.
func (e *LuaEngine) LoadScriptFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return e.LoadScript(filepath.Base(path), content)
}

// LoadScriptDir implements Engine.
func (e *LuaEngine) LoadScriptDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return fmt.Errorf("failed to list scripts in %s: %w", dir, err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := e.LoadScriptFile(path); err != nil {
			return err
		}
	}
	return nil
}

// Scripts returns the names of the loaded scripts, in load order.
func (e *LuaEngine) Scripts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loaded...)
}

// ExecuteFunction implements Engine.
func (e *LuaEngine) ExecuteFunction(ctx context.Context, funcName string, args ...any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, errors.New("lua engine is closed")
	}
	L := e.state

	fn := L.GetGlobal(funcName)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, funcName)
	}

	if e.config.ScriptTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.config.ScriptTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	L.SetContext(ctx)
	defer L.RemoveContext()
	defer L.SetTop(0)

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = toLua(L, arg)
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, luaArgs...); err != nil {
		return nil, fmt.Errorf("lua function %s failed: %w", funcName, err)
	}
	return fromLua(L.Get(-1)), nil
}

// Close implements Engine.
func (e *LuaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	return nil
}

// LoadAll loads every path, which may name a .lua file or a directory of them.
func LoadAll(engine Engine, paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to access script path %s: %w", path, err)
		}
		if info.IsDir() {
			err = engine.LoadScriptDir(path)
		} else {
			err = engine.LoadScriptFile(path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
