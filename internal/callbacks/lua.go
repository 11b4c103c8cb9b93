package callbacks

import (
	"fmt"
	"log/slog"

	"github.com/siohaza/slither/internal/world"
	"github.com/siohaza/slither/pkg/lua"

	golua "github.com/Shopify/go-lua"
)

// LuaCallbacks forwards lifecycle events to optional global functions of a
// hook script: on_join(id, nickname), on_crash(id, nickname, mass) and
// on_disconnect(id, nickname, mass).
type LuaCallbacks struct {
	vm     *lua.VM
	name   string
	logger *slog.Logger
}

// LoadLuaCallbacks runs the script at path and calls its on_init, if defined.
func LoadLuaCallbacks(path string, logger *slog.Logger) (*LuaCallbacks, error) {
	vm := lua.NewVM()
	lc := NewLuaCallbacks(vm, logger)

	if err := vm.LoadFile(path); err != nil {
		return nil, fmt.Errorf("failed to load hook script: %w", err)
	}
	if err := lc.init(); err != nil {
		return nil, err
	}
	return lc, nil
}

// NewLuaCallbacks wraps a VM and exposes log(message) to scripts run on it afterwards.
func NewLuaCallbacks(vm *lua.VM, logger *slog.Logger) *LuaCallbacks {
	if logger == nil {
		logger = slog.Default()
	}

	lc := &LuaCallbacks{vm: vm, name: "hooks", logger: logger}
	vm.RegisterFunction("log", func(l *golua.State) int {
		msg := golua.CheckString(l, 1)
		lc.logger.Info(msg, "script", lc.name)
		return 0
	})
	return lc
}

func (lc *LuaCallbacks) init() error {
	if name, err := lc.vm.GetGlobalString("name"); err == nil {
		lc.name = name
	}

	if lc.vm.HasFunction("on_init") {
		if err := lc.vm.CallFunction("on_init"); err != nil {
			return fmt.Errorf("failed to call on_init: %w", err)
		}
	}
	return nil
}

func (lc *LuaCallbacks) Name() string {
	return lc.name
}

func (lc *LuaCallbacks) OnJoin(id world.SlitherID, nickname string) string {
	if !lc.vm.HasFunction("on_join") {
		return nickname
	}

	results, err := lc.vm.CallFunctionWithReturn("on_join", 1, int(id), nickname)
	if err != nil {
		lc.logger.Error("lua on_join error", "error", err)
		return nickname
	}
	if replaced, ok := results[0].(string); ok {
		return replaced
	}
	return nickname
}

func (lc *LuaCallbacks) OnCrash(id world.SlitherID, nickname string, mass float32) {
	if !lc.vm.HasFunction("on_crash") {
		return
	}
	if err := lc.vm.CallFunction("on_crash", int(id), nickname, float64(mass)); err != nil {
		lc.logger.Error("lua on_crash error", "error", err)
	}
}

func (lc *LuaCallbacks) OnDisconnect(id world.SlitherID, nickname string, mass float32) {
	if !lc.vm.HasFunction("on_disconnect") {
		return
	}
	if err := lc.vm.CallFunction("on_disconnect", int(id), nickname, float64(mass)); err != nil {
		lc.logger.Error("lua on_disconnect error", "error", err)
	}
}
