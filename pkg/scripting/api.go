package scripting

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/lexlapax/recall/pkg/log"
)

// registerAPIFunctions exposes the recall table to scripts.
func registerAPIFunctions(L *lua.LState) {
	api := L.NewTable()
	L.SetField(api, "log", L.NewFunction(apiLog))
	L.SetField(api, "now", L.NewFunction(apiNow))
	L.SetField(api, "format_time", L.NewFunction(apiFormatTime))
	L.SetField(api, "uuid", L.NewFunction(apiUUID))
	L.SetField(api, "json_encode", L.NewFunction(apiJSONEncode))
	L.SetField(api, "json_decode", L.NewFunction(apiJSONDecode))
	L.SetGlobal("recall", api)
}

// apiLog logs a message at the given level: recall.log(level, message).
func apiLog(L *lua.LState) int {
	level := strings.ToLower(L.CheckString(1))
	message := L.CheckString(2)

	switch level {
	case "debug":
		log.Debug("Lua script message", "message", message)
	case "warn", "warning":
		log.Warn("Lua script message", "message", message)
	case "error":
		log.Error("Lua script message", "message", message)
	default:
		log.Info("Lua script message", "message", message)
	}
	return 0
}

// apiNow returns the current Unix time in seconds.
func apiNow(L *lua.LState) int {
	L.Push(lua.LNumber(time.Now().Unix()))
	return 1
}

// apiFormatTime formats a Unix timestamp in UTC with a Go layout, RFC 3339 by default.
func apiFormatTime(L *lua.LState) int {
	ts := L.CheckNumber(1)
	layout := L.OptString(2, time.RFC3339)
	L.Push(lua.LString(time.Unix(int64(ts), 0).UTC().Format(layout)))
	return 1
}

func apiUUID(L *lua.LState) int {
	L.Push(lua.LString(uuid.NewString()))
	return 1
}

// apiJSONEncode returns the JSON text of a value, or nil and an error message.
func apiJSONEncode(L *lua.LState) int {
	data, err := json.Marshal(fromLua(L.CheckAny(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	return 1
}

// apiJSONDecode parses JSON text into a value, or returns nil and an error message.
func apiJSONDecode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(toLua(L, v))
	return 1
}
