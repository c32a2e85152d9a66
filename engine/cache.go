package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bluele/gcache"
	"go.uber.org/zap"

	"github.com/disputelabs/wasm-instrument/instrument"
)

// compileCache keeps compiled modules behind an ARC cache. Instrumented
// output is a pure function of guest bytes and pass configuration, so
// the key hashes both.
type compileCache struct {
	arc gcache.Cache
}

func newCompileCache(size int) *compileCache {
	return &compileCache{arc: gcache.New(size).ARC().Build()}
}

func (c *compileCache) get(key string) (*Module, bool) {
	if c == nil {
		return nil, false
	}
	v, err := c.arc.Get(key)
	if err != nil {
		return nil, false
	}
	mod, ok := v.(*Module)
	return mod, ok
}

func (c *compileCache) add(key string, mod *Module) {
	if c == nil {
		return
	}
	if err := c.arc.Set(key, mod); err != nil {
		Logger().Warn("cache compiled module", zap.Error(err))
	}
}

// configKeyed is implemented by passes that can render their declared
// configuration as a stable string. The key must not depend on state
// that mutates while the pass runs.
type configKeyed interface {
	ConfigKey() string
}

// cacheKey hashes the guest bytes and each pass's declared configuration
// (budget, page limit, export name). Two compiles with equal bytes and
// equal configurations share a key even across fresh pass instances. A
// pass without a stable key makes the compile uncacheable.
func cacheKey(wasmBytes []byte, passes []instrument.Middleware) (string, bool) {
	h := sha256.New()
	h.Write(wasmBytes)
	for _, pass := range passes {
		kp, ok := pass.(configKeyed)
		if !ok {
			return "", false
		}
		key := kp.ConfigKey()
		if key == "" {
			return "", false
		}
		fmt.Fprintf(h, "|%s", key)
	}
	return hex.EncodeToString(h.Sum(nil)), true
}
