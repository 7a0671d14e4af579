package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// scriptInstructionLimit caps Lua opcodes per command invocation so a
// runaway script cannot stall the chat handler.
const scriptInstructionLimit = 100_000

// LoadScriptCommands discovers Lua command handlers in dir. Each
// <name>.lua file contributes one command named <name>; the script must
// define a string `usage` and a function `run(args, sender)` returning a
// table of reply lines. A missing or empty dir yields no commands.
//
// Postcondition: Returns the discovered commands, or an error if dir
// exists but a script fails to load.
func LoadScriptCommands(dir string, logger *zap.Logger) ([]Command, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading command script directory %s: %w", dir, err)
	}

	var cmds []Command
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".lua")

		cmd, err := loadScriptCommand(name, path, logger)
		if err != nil {
			return nil, fmt.Errorf("loading command script %s: %w", path, err)
		}
		cmds = append(cmds, cmd)
		logger.Info("loaded scripted command",
			zap.String("command", name),
			zap.String("path", path),
		)
	}
	return cmds, nil
}

func loadScriptCommand(name, path string, logger *zap.Logger) (Command, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Command{}, err
	}

	// Validate once at startup so a broken script fails the boot instead
	// of the first invocation.
	usage, err := scriptUsage(string(source))
	if err != nil {
		return Command{}, err
	}

	src := string(source)
	return Command{
		Name:  name,
		Usage: usage,
		Run: func(room Room, args []string, senderID string) {
			lines, err := runScript(src, args, senderID)
			if err != nil {
				logger.Error("scripted command failed",
					zap.String("command", name),
					zap.Error(err),
				)
				return
			}
			if len(lines) > 0 {
				room.SendAsServer(lines...)
			}
		},
	}, nil
}

// scriptUsage executes the script once and extracts its declared usage
// signature, verifying the run entry point exists.
func scriptUsage(source string) (string, error) {
	L := newSandboxedState()
	defer L.Close()

	if err := L.DoString(source); err != nil {
		return "", err
	}
	usage, ok := L.GetGlobal("usage").(lua.LString)
	if !ok {
		return "", fmt.Errorf("script does not define a string `usage`")
	}
	if _, ok := L.GetGlobal("run").(*lua.LFunction); !ok {
		return "", fmt.Errorf("script does not define a function `run`")
	}
	return string(usage), nil
}

// runScript evaluates the script in a fresh sandboxed state and calls
// run(args, sender), converting the returned table to reply lines.
func runScript(source string, args []string, senderID string) ([]string, error) {
	L := newSandboxedState()
	defer L.Close()

	if err := L.DoString(source); err != nil {
		return nil, err
	}

	argTable := L.NewTable()
	for _, a := range args {
		argTable.Append(lua.LString(a))
	}

	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("run"),
		NRet:    1,
		Protect: true,
	}, argTable, lua.LString(senderID))
	if err != nil {
		return nil, err
	}

	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, nil
	}

	var lines []string
	tbl.ForEach(func(_, v lua.LValue) {
		lines = append(lines, lua.LVAsString(v))
	})
	return lines, nil
}

// countingContext cancels itself after Done() has been called limit
// times. GopherLua calls Done() once per opcode, making this an exact
// instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newSandboxedState creates a Lua state with only the safe stdlib
// loaded, dangerous globals stripped, and a hard opcode limit.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(scriptInstructionLimit)
	L.SetContext(&countingContext{Context: base, cancel: cancel, remaining: rem})
	return L
}
