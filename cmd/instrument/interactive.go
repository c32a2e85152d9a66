package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/disputelabs/wasm-instrument/engine"
	"github.com/disputelabs/wasm-instrument/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	gasStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0E68C"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type exportInfo struct {
	name string
	sig  string
}

type inspectorModel struct {
	err      error
	eng      *engine.Engine
	mod      *engine.Module
	inst     *engine.Instance
	cfg      instrumentConfig
	filename string
	result   string
	gasLine  string
	funcs    []exportInfo
	input    textinput.Model
	selected int
	state    modelState
}

func newInspectorModel(filename string, cfg instrumentConfig) *inspectorModel {
	return &inspectorModel{
		filename: filename,
		cfg:      cfg,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	eng   *engine.Engine
	mod   *engine.Module
	funcs []exportInfo
}

type callResultMsg struct {
	err     error
	result  string
	gasLine string
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.load
}

func (m *inspectorModel) load() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	eng := engine.New(ctx, nil)
	mod, err := eng.Compile(ctx, data, m.cfg.passes()...)
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	parsed, err := wasm.ParseModule(mod.Bytes())
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	var funcs []exportInfo
	for _, exp := range parsed.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		sig := ""
		if ft := parsed.GetFuncType(exp.Idx); ft != nil {
			sig = ft.String()
		}
		funcs = append(funcs, exportInfo{name: exp.Name, sig: sig})
	}

	return loadedMsg{eng: eng, mod: mod, funcs: funcs}
}

func (m *inspectorModel) callFunction() tea.Msg {
	ctx := context.Background()

	if m.inst == nil {
		inst, err := m.mod.Instantiate(ctx)
		if err != nil {
			return callResultMsg{err: err}
		}
		m.inst = inst
	}

	args, err := parseArgs(m.input.Value())
	if err != nil {
		return callResultMsg{err: err}
	}

	f := m.funcs[m.selected]
	results, callErr := m.inst.Call(ctx, f.name, args...)

	gasLine := ""
	if m.cfg.meter {
		if gas, err := m.inst.GasLeft(); err == nil {
			gasLine = fmt.Sprintf("gas left: %d", gas)
		}
		if exhausted, err := m.inst.Exhausted(); err == nil && exhausted {
			gasLine += "  (budget exhausted)"
		}
	}

	if callErr != nil {
		return callResultMsg{err: callErr, gasLine: gasLine}
	}
	return callResultMsg{result: fmt.Sprintf("%v", results), gasLine: gasLine}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			ctx := context.Background()
			if m.inst != nil {
				m.inst.Close(ctx)
			}
			if m.eng != nil {
				m.eng.Close(ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.input = textinput.New()
				m.input.Placeholder = "args (comma-separated integers)"
				m.input.Width = 40
				m.input.Focus()
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.gasLine = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.gasLine = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.mod = msg.mod
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.gasLine = msg.gasLine
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *inspectorModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Instrumenting " + m.filename + "..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Instrumented Module"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Exported functions:\n\n")
		for i, f := range m.funcs {
			line := funcStyle.Render(f.name) + " " + typeStyle.Render(f.sig)
			if f.name == m.cfg.startName {
				line += helpStyle.Render("  (relocated start)")
			}
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> ") + line)
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s %s\n\n", funcStyle.Render(f.name), typeStyle.Render(f.sig)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if m.gasLine != "" {
			b.WriteString("\n")
			b.WriteString(gasStyle.Render(m.gasLine))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(filename string, cfg instrumentConfig) error {
	p := tea.NewProgram(newInspectorModel(filename, cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
