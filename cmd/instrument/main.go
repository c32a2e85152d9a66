package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/disputelabs/wasm-instrument/engine"
	"github.com/disputelabs/wasm-instrument/instrument"
	"github.com/disputelabs/wasm-instrument/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm file")
		outFile     = flag.String("o", "", "Write the instrumented binary to this path")
		startName   = flag.String("start", instrument.DefaultStartExport, "Export name for the relocated start function")
		heapPages   = flag.Uint64("heap", 0, "Cap linear memory at this many pages (0 = no cap)")
		meter       = flag.Bool("meter", false, "Inject cost metering")
		budget      = flag.Uint64("budget", 10_000_000, "Initial cost budget for the meter")
		perOp       = flag.Uint64("cost", 1, "Cost charged per operator")
		funcName    = flag.String("func", "", "Function to call after instantiation")
		funcArgs    = flag.String("args", "", "Arguments for -func (comma-separated integers)")
		list        = flag.Bool("list", false, "List the instrumented module's exports and exit")
		interactive = flag.Bool("i", false, "Interactive inspector")
		verbose     = flag.Bool("v", false, "Verbose engine logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: instrument -wasm <file.wasm> [-o out.wasm] [-heap pages] [-meter -budget n]")
		fmt.Fprintln(os.Stderr, "       instrument -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       instrument -wasm <file.wasm> -i  (interactive inspector)")
		os.Exit(1)
	}

	if *verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(log)
			defer log.Sync()
		}
	}

	cfg := instrumentConfig{
		startName: *startName,
		heapPages: *heapPages,
		meter:     *meter,
		budget:    *budget,
		perOp:     *perOp,
	}

	if *interactive {
		if err := runInteractive(*wasmFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *outFile, *funcName, *funcArgs, *list, cfg); err != nil {
		fmt.Fprintln(os.Stderr, errStyle().Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}

type instrumentConfig struct {
	startName string
	heapPages uint64
	meter     bool
	budget    uint64
	perOp     uint64
}

// passes builds the pass chain the flags selected. StartMover always
// runs; heap and meter passes are opt-in.
func (c instrumentConfig) passes() []instrument.Middleware {
	passes := []instrument.Middleware{instrument.NewStartMover(c.startName)}
	if c.heapPages > 0 {
		passes = append(passes, instrument.NewHeapBound(c.heapPages))
	}
	if c.meter {
		passes = append(passes, instrument.NewMeter(instrument.FixedCost(c.perOp), c.budget))
	}
	return passes
}

func run(wasmFile, outFile, funcName, funcArgs string, listOnly bool, cfg instrumentConfig) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	eng := engine.New(ctx, nil)
	defer eng.Close(ctx)

	mod, err := eng.Compile(ctx, data, cfg.passes()...)
	if err != nil {
		return err
	}

	fmt.Printf("Guest: %s (%d bytes -> %d instrumented)\n", wasmFile, len(data), len(mod.Bytes()))

	if outFile != "" {
		if err := os.WriteFile(outFile, mod.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Wrote %s\n", outFile)
	}

	parsed, err := wasm.ParseModule(mod.Bytes())
	if err != nil {
		return fmt.Errorf("reparse instrumented module: %w", err)
	}
	printExports(parsed)

	if listOnly || funcName == "" {
		return nil
	}

	args, err := parseArgs(funcArgs)
	if err != nil {
		return err
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	// Run initialization explicitly now that the start export owns it
	if _, ok := parsed.FindExport(cfg.startName); ok {
		if _, err := inst.Call(ctx, cfg.startName); err != nil {
			return fmt.Errorf("call %s: %w", cfg.startName, err)
		}
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, funcArgs)
	results, callErr := inst.Call(ctx, funcName, args...)

	if cfg.meter {
		gas, err := inst.GasLeft()
		if err != nil {
			return err
		}
		exhausted, err := inst.Exhausted()
		if err != nil {
			return err
		}
		fmt.Printf("Gas: %d of %d left", gas, cfg.budget)
		if exhausted {
			fmt.Printf(" %s", errStyle().Render("(budget exhausted)"))
		}
		fmt.Println()
	}

	if callErr != nil {
		return fmt.Errorf("call %s: %w", funcName, callErr)
	}
	if len(results) > 0 {
		fmt.Printf("Result: %v\n", results)
	}
	return nil
}

func printExports(m *wasm.Module) {
	kinds := map[byte]string{
		wasm.KindFunc:   "func",
		wasm.KindTable:  "table",
		wasm.KindMemory: "memory",
		wasm.KindGlobal: "global",
	}

	fmt.Println("\nExports:")
	for _, exp := range m.Exports {
		detail := ""
		if exp.Kind == wasm.KindFunc {
			if ft := m.GetFuncType(exp.Idx); ft != nil {
				detail = " " + ft.String()
			}
		}
		fmt.Printf("  %-8s %s%s\n", kinds[exp.Kind], nameStyle().Render(exp.Name), detail)
	}
}

func parseArgs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// Styles render plain when stdout is not a terminal.

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func nameStyle() lipgloss.Style {
	if !isTTY() {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
}

func errStyle() lipgloss.Style {
	if !isTTY() {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
}
