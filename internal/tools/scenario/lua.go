package scenario

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/Shopify/go-lua"
)

// luaScenarioMeta is the registry name of the metatable shared by every
// Scenario userdata.
const luaScenarioMeta = "macrotable.scenario"

// Scenario is what a script builds: a name and the steps to replay against
// the macro API, in call order.
type Scenario struct {
	Name  string
	Steps []Step
}

// Step is one recorded builder call. Args holds the call's Lua table
// converted to Go values (string, bool, int, float64, []any, map[string]any).
type Step struct {
	Kind string
	Args map[string]any
}

func (s *Scenario) record(kind string, args map[string]any) {
	if args == nil {
		args = map[string]any{}
	}
	s.Steps = append(s.Steps, Step{Kind: kind, Args: args})
}

// argShape says what a builder method accepts after the receiver.
type argShape int

const (
	argsTable argShape = iota
	argsOptionalTable
	argsIdentifier
)

// builderMethods maps each Lua method to the step it records. "table" and
// "as" are identifiers: s:table("t1"), s:as("u1", "pt-BR").
var builderMethods = map[string]argShape{
	"table":          argsIdentifier,
	"as":             argsIdentifier,
	"character":      argsTable,
	"counteract":     argsTable,
	"evaluate":       argsTable,
	"explain":        argsTable,
	"whirling_throw": argsOptionalTable,
	"history":        argsOptionalTable,
}

// LoadScenarioFromFile executes the script at path in a fresh Lua state.
// The script must return the Scenario it built; an unnamed one takes the
// file's base name.
func LoadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	installScenarioAPI(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua %s: %w", path, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua %s: %w", path, err)
	}
	defer state.Pop(1)

	scenario, _ := state.ToUserData(-1).(*Scenario)
	if scenario == nil {
		return nil, fmt.Errorf("%s: scenario script must return Scenario.new(...)", path)
	}
	if strings.TrimSpace(scenario.Name) == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return scenario, nil
}

// installScenarioAPI defines the global Scenario table and the metatable
// its instances use.
func installScenarioAPI(state *lua.State) {
	names := make([]string, 0, len(builderMethods))
	for name := range builderMethods {
		names = append(names, name)
	}
	sort.Strings(names)

	methods := make([]lua.RegistryFunction, 0, len(names))
	for _, name := range names {
		methods = append(methods, lua.RegistryFunction{Name: name, Function: builderMethod(name, builderMethods[name])})
	}

	lua.NewMetaTable(state, luaScenarioMeta)
	state.NewTable()
	lua.SetFunctions(state, methods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: newScenario}}, 0)
	state.SetGlobal("Scenario")
}

func newScenario(state *lua.State) int {
	state.PushUserData(&Scenario{Name: lua.OptString(state, 1, "")})
	lua.SetMetaTableNamed(state, luaScenarioMeta)
	return 1
}

// builderMethod records one step and returns the receiver so calls chain.
func builderMethod(name string, shape argShape) lua.Function {
	return func(state *lua.State) int {
		scenario, _ := lua.CheckUserData(state, 1, luaScenarioMeta).(*Scenario)
		if scenario == nil {
			lua.ArgumentError(state, 1, "Scenario expected")
			return 0
		}

		switch shape {
		case argsIdentifier:
			kind, args := identifierStep(state, name)
			scenario.record(kind, args)
		case argsTable:
			lua.CheckType(state, 2, lua.TypeTable)
			scenario.record(name, luaTable(state, 2))
		case argsOptionalTable:
			args := map[string]any{}
			if state.TypeOf(2) == lua.TypeTable {
				args = luaTable(state, 2)
			}
			scenario.record(name, args)
		}

		state.PushValue(1)
		return 1
	}
}

func identifierStep(state *lua.State, method string) (string, map[string]any) {
	args := map[string]any{"id": lua.CheckString(state, 2)}
	if method != "as" {
		return method, args
	}
	if locale := lua.OptString(state, 3, ""); locale != "" {
		args["locale"] = locale
	}
	return "user", args
}

// luaTable converts the table at index into a map, keeping string keys only.
func luaTable(state *lua.State, index int) map[string]any {
	out := map[string]any{}
	for _, entry := range luaEntries(state, index) {
		if key, ok := entry.key.(string); ok {
			out[key] = entry.value
		}
	}
	return out
}

type luaEntry struct {
	key   any
	value any
}

// luaEntries walks the table at index once, converting keys and values.
func luaEntries(state *lua.State, index int) []luaEntry {
	index = state.AbsIndex(index)
	var entries []luaEntry
	state.PushNil()
	for state.Next(index) {
		entries = append(entries, luaEntry{key: luaValue(state, -2), value: luaValue(state, -1)})
		state.Pop(1)
	}
	return entries
}

func luaValue(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		s, _ := state.ToString(index)
		return s
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := state.ToNumber(index)
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n)
		}
		return n
	case lua.TypeTable:
		entries := luaEntries(state, index)
		if list, ok := luaSequence(entries); ok {
			return list
		}
		out := make(map[string]any, len(entries))
		for _, entry := range entries {
			if key, ok := entry.key.(string); ok {
				out[key] = entry.value
			}
		}
		return out
	default:
		return nil
	}
}

// luaSequence reports whether entries are exactly the keys 1..n and, if so,
// returns the values in key order.
func luaSequence(entries []luaEntry) ([]any, bool) {
	if len(entries) == 0 {
		return nil, false
	}
	list := make([]any, len(entries))
	seen := make([]bool, len(entries))
	for _, entry := range entries {
		position, ok := entry.key.(int)
		if !ok || position < 1 || position > len(entries) || seen[position-1] {
			return nil, false
		}
		seen[position-1] = true
		list[position-1] = entry.value
	}
	return list, true
}
