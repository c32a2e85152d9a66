package instrument

import "strconv"

// HeapBound caps the guest's linear memory at Limit pages. Modules whose
// memory minimum already exceeds the bound are rejected rather than
// silently truncated.
type HeapBound struct {
	Limit uint64
}

// NewHeapBound returns a pass bounding memory at limit pages.
func NewHeapBound(limit uint64) *HeapBound {
	return &HeapBound{Limit: limit}
}

func (h *HeapBound) UpdateModule(module Module) error {
	return module.LimitHeap(h.Limit)
}

func (h *HeapBound) Instrument(funcIdx uint32) (FuncMiddleware, error) {
	return DefaultFuncMiddleware{}, nil
}

func (h *HeapBound) Name() string {
	return "heap bound"
}

// ConfigKey renders the declared configuration.
func (h *HeapBound) ConfigKey() string {
	return "heap:" + strconv.FormatUint(h.Limit, 10)
}
