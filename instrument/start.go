package instrument

// DefaultStartExport is the export name StartMover uses when none is
// configured. The host calls it explicitly once metering globals are
// seeded, instead of letting instantiation run it implicitly.
const DefaultStartExport = "moved_start"

// StartMover relocates the start function: the module's implicit start
// designation is removed and the same function is exported by name, so
// the host controls when (and whether) initialization runs.
type StartMover struct {
	Export string
}

// NewStartMover returns a StartMover exporting under name, or under
// DefaultStartExport when name is empty.
func NewStartMover(name string) *StartMover {
	if name == "" {
		name = DefaultStartExport
	}
	return &StartMover{Export: name}
}

func (s *StartMover) UpdateModule(module Module) error {
	return module.MoveStartFunction(s.Export)
}

func (s *StartMover) Instrument(funcIdx uint32) (FuncMiddleware, error) {
	return DefaultFuncMiddleware{}, nil
}

func (s *StartMover) Name() string {
	return "start mover"
}

// ConfigKey renders the declared configuration.
func (s *StartMover) ConfigKey() string {
	return "start:" + s.Export
}
