package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/instrument"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// Engine compiles instrumented modules with wazero. Compilation parses
// the guest binary, runs the passes over the compile-time metadata and
// function bodies via the middleware bridges, reassembles the module,
// and hands the instrumented encoding to wazero.
type Engine struct {
	runtime wazero.Runtime
	cache   *compileCache
	log     *zap.Logger
}

// Config holds engine construction options.
type Config struct {
	// MemoryLimitPages caps memory per instance in 64KiB pages.
	// 0 means wazero's default.
	MemoryLimitPages uint32

	// CacheSize is the number of compiled modules kept in the ARC
	// cache. 0 disables caching.
	CacheSize int

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger
}

// New creates an engine.
func New(ctx context.Context, cfg *Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfig()
	log := Logger()
	var cache *compileCache

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CacheSize > 0 {
			cache = newCompileCache(cfg.CacheSize)
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		log:     log,
	}
}

// Compile instruments wasmBytes with the passes in order and compiles
// the result. Identical bytes and declared pass configurations hit the
// cache; a pass that cannot render a stable configuration key makes the
// compile uncacheable.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte, passes ...instrument.Middleware) (*Module, error) {
	key, cacheable := cacheKey(wasmBytes, passes)
	if cacheable {
		if mod, ok := e.cache.get(key); ok {
			e.log.Debug("compile cache hit", zap.String("key", key[:16]))
			return mod, nil
		}
	}

	m, err := wasm.ParseModuleValidate(wasmBytes)
	if err != nil {
		return nil, errors.ParseFailed("module", err)
	}

	meta := MetaFromModule(m)
	for _, pass := range passes {
		w := WrapMiddleware(pass)
		if err := w.ModulePass(meta); err != nil {
			return nil, err
		}
		for i := range m.Code {
			if err := w.FuncPass(uint32(i), &m.Code[i]); err != nil {
				return nil, err
			}
		}
		e.log.Debug("pass applied", zap.String("pass", pass.Name()))
	}
	meta.Finalize(m)

	encoded := m.Encode()
	compiled, err := e.runtime.CompileModule(ctx, encoded)
	if err != nil {
		return nil, errors.Compile("compile instrumented module", err)
	}

	mod := &Module{engine: e, compiled: compiled, bytes: encoded}
	if cacheable {
		e.cache.add(key, mod)
	}
	e.log.Debug("module compiled",
		zap.Int("input_bytes", len(wasmBytes)),
		zap.Int("instrumented_bytes", len(encoded)),
		zap.Int("passes", len(passes)))
	return mod, nil
}

// Close releases the engine and everything compiled through it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Module is a compiled, instrumented module.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	bytes    []byte
}

// Bytes returns the instrumented binary encoding, the exact bytes the
// deterministic executor must replay.
func (m *Module) Bytes() []byte {
	return m.bytes
}

// Instantiate creates an anonymous instance. Relocated start functions
// do not run here; the host calls them explicitly once it has seeded
// the metering globals.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	inst, err := m.engine.runtime.InstantiateModule(ctx, m.compiled,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &Instance{mod: inst}, nil
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instance is a running instrumented module. It is not safe for
// concurrent use.
type Instance struct {
	mod api.Module
}

// Call invokes an exported function.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return fn.Call(ctx, args...)
}

// GasLeft reads the remaining budget from the meter's gas global.
func (i *Instance) GasLeft() (uint64, error) {
	return GetGlobal[uint64](i, instrument.GasGlobalName)
}

// SetGasLeft seeds the meter's gas global before a call.
func (i *Instance) SetGasLeft(gas uint64) error {
	return SetGlobal(i, instrument.GasGlobalName, gas)
}

// Exhausted reports whether the meter tripped the status global.
func (i *Instance) Exhausted() (bool, error) {
	status, err := GetGlobal[uint32](i, instrument.StatusGlobalName)
	if err != nil {
		return false, err
	}
	return status != 0, nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
