package scripting

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI(t *testing.T) {
	engine := newTestEngine(t, `
		function make_uuid()
			return recall.uuid()
		end

		function format(ts)
			return recall.format_time(ts)
		end

		function encode()
			return recall.json_encode({ name = "tea", tags = { "green", "hot" } })
		end

		function decode(text)
			local v = recall.json_decode(text)
			return v.name .. ":" .. v.count
		end

		function decode_bad()
			local v, err = recall.json_decode("{")
			return { value = v == nil, err = err ~= nil }
		end

		function logs()
			recall.log("debug", "quiet")
			recall.log("info", "hello")
			print("printed", 1)
			return recall.now() > 0
		end
	`)
	ctx := context.Background()

	result, err := engine.ExecuteFunction(ctx, "make_uuid")
	require.NoError(t, err)
	_, err = uuid.Parse(result.(string))
	assert.NoError(t, err)

	result, err = engine.ExecuteFunction(ctx, "format", 0)
	require.NoError(t, err)
	assert.Equal(t, "1970-01-01T00:00:00Z", result)

	result, err = engine.ExecuteFunction(ctx, "encode")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"tea","tags":["green","hot"]}`, result.(string))

	result, err = engine.ExecuteFunction(ctx, "decode", `{"name":"tea","count":2}`)
	require.NoError(t, err)
	assert.Equal(t, "tea:2", result)

	result, err = engine.ExecuteFunction(ctx, "decode_bad")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": true, "err": true}, result)

	result, err = engine.ExecuteFunction(ctx, "logs")
	require.NoError(t, err)
	assert.Equal(t, true, result)
}
