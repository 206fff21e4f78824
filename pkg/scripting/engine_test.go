package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, script string) *LuaEngine {
	t.Helper()
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	if script != "" {
		require.NoError(t, engine.LoadScript("test", []byte(script)))
	}
	return engine
}

func TestLuaEngine_LoadScript(t *testing.T) {
	engine := newTestEngine(t, "")

	err := engine.LoadScript("valid", []byte(`
		function hello()
			return "Hello, World!"
		end
	`))
	assert.NoError(t, err)

	err = engine.LoadScript("invalid", []byte(`
		function invalid(
			return "This is not valid Lua"
		end
	`))
	assert.Error(t, err)

	err = engine.LoadScript("raises", []byte(`error("boom")`))
	assert.Error(t, err)

	assert.Equal(t, []string{"valid"}, engine.Scripts())
}

func TestLuaEngine_ExecuteFunction(t *testing.T) {
	engine := newTestEngine(t, `
		function hello()
			return "Hello, World!"
		end

		function add(a, b)
			return a + b
		end

		function get_table()
			return {
				name = "test",
				value = 123,
				nested = { key = "value" }
			}
		end

		function get_list()
			return { "a", "b", "c" }
		end

		function count_args(args)
			local n = 0
			for _, v in ipairs(args.items) do
				n = n + v
			end
			return n .. " " .. args.name
		end

		function nothing()
		end
	`)
	ctx := context.Background()

	result, err := engine.ExecuteFunction(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", result)

	result, err = engine.ExecuteFunction(ctx, "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(5), result)

	result, err = engine.ExecuteFunction(ctx, "get_table")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":   "test",
		"value":  float64(123),
		"nested": map[string]any{"key": "value"},
	}, result)

	result, err = engine.ExecuteFunction(ctx, "get_list")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, result)

	result, err = engine.ExecuteFunction(ctx, "count_args", map[string]any{
		"name":  "items",
		"items": []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "6 items", result)

	result, err = engine.ExecuteFunction(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = engine.ExecuteFunction(ctx, "non_existent")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestLuaEngine_RuntimeError(t *testing.T) {
	engine := newTestEngine(t, `
		function fail()
			error("script failure")
		end
		function ok()
			return "still works"
		end
	`)
	ctx := context.Background()

	_, err := engine.ExecuteFunction(ctx, "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script failure")

	result, err := engine.ExecuteFunction(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, "still works", result)
}

func TestLuaEngine_Timeout(t *testing.T) {
	engine, err := NewLuaEngine(Config{EnableSandboxing: true, ScriptTimeoutMs: 50})
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.LoadScript("loop", []byte(`
		function spin()
			while true do end
		end
	`)))

	_, err = engine.ExecuteFunction(context.Background(), "spin")
	assert.Error(t, err)
}

func TestLuaEngine_Sandbox(t *testing.T) {
	engine := newTestEngine(t, `
		function globals()
			return {
				os = os == nil,
				io = io == nil,
				require = require == nil,
				dofile = dofile == nil,
				loadfile = loadfile == nil,
				string = string ~= nil,
				math = math ~= nil,
				table = table ~= nil
			}
		end
	`)

	result, err := engine.ExecuteFunction(context.Background(), "globals")
	require.NoError(t, err)
	for name, ok := range result.(map[string]any) {
		assert.Equal(t, true, ok, name)
	}

	open, err := NewLuaEngine(Config{EnableSandboxing: false})
	require.NoError(t, err)
	defer open.Close()
	require.NoError(t, open.LoadScript("os", []byte(`function has_os() return os ~= nil end`)))
	result, err = open.ExecuteFunction(context.Background(), "has_os")
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestLuaEngine_LoadScriptDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`function name() return base .. "-b" end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`base = "a"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not lua`), 0o644))

	engine := newTestEngine(t, "")
	require.NoError(t, engine.LoadScriptDir(dir))
	assert.Equal(t, []string{"a.lua", "b.lua"}, engine.Scripts())

	result, err := engine.ExecuteFunction(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "a-b", result)

	single := newTestEngine(t, "")
	require.NoError(t, LoadAll(single, []string{filepath.Join(dir, "a.lua")}))
	assert.Equal(t, []string{"a.lua"}, single.Scripts())

	assert.Error(t, LoadAll(single, []string{filepath.Join(dir, "missing")}))
}

func TestLuaEngine_Closed(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	assert.Error(t, engine.LoadScript("x", []byte(`x = 1`)))
	_, err = engine.ExecuteFunction(context.Background(), "x")
	assert.Error(t, err)
}
