package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/client"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#0088CC")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#0088CC"))

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
	stateInputParams
	stateRunning
	stateShowResult
)

type interactiveModel struct {
	err       error
	client    *client.Client
	call      *client.Call
	library   string
	funcs     []string
	responses []tonbridge.Response
	input     textinput.Model
	spinner   spinner.Model
	selected  int
	state     modelState
}

func newInteractiveModel(c *client.Client, library string) *interactiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &interactiveModel{
		client:  c,
		library: library,
		spinner: sp,
		state:   stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	funcs []string
}

type startedMsg struct {
	err  error
	call *client.Call
}

type responseMsg struct {
	err  error
	resp tonbridge.Response
	eof  bool
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.loadFunctions, m.spinner.Tick)
}

func (m *interactiveModel) loadFunctions() tea.Msg {
	funcs, err := listFunctions(m.client)
	return loadedMsg{funcs: funcs, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputParams {
				return m, tea.Quit
			}

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
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInput()
				m.state = stateInputParams
				return m, textinput.Blink

			case stateInputParams:
				params := strings.TrimSpace(m.input.Value())
				if params == "" {
					params = "{}"
				}
				if !json.Valid([]byte(params)) {
					m.err = fmt.Errorf("params are not valid JSON")
					return m, nil
				}
				m.err = nil
				m.responses = nil
				m.state = stateRunning
				return m, m.start(m.funcs[m.selected], params)

			case stateShowResult:
				m.reset()
			}

		case "esc":
			switch m.state {
			case stateInputParams, stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		m.err = msg.err
		m.funcs = msg.funcs
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateShowResult
			return m, nil
		}
		m.call = msg.call
		return m, m.next(msg.call)

	case responseMsg:
		switch {
		case msg.eof:
			m.state = stateShowResult
			return m, nil
		case msg.err != nil:
			m.err = msg.err
			m.state = stateShowResult
			return m, nil
		}
		m.responses = append(m.responses, msg.resp)
		return m, m.next(m.call)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state == stateInputParams {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.responses = nil
	m.call = nil
	m.err = nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = "{}"
	ti.Prompt = "params: "
	ti.Width = 60
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) start(function, params string) tea.Cmd {
	return func() tea.Msg {
		call, err := m.client.Stream(context.Background(), function, json.RawMessage(params))
		return startedMsg{call: call, err: err}
	}
}

func (m *interactiveModel) next(call *client.Call) tea.Cmd {
	return func() tea.Msg {
		r, err := call.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return responseMsg{eof: true}
		}
		return responseMsg{resp: r, err: err}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelectFunc {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.funcs == nil {
		return m.spinner.View() + " Loading functions..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("TON Client"))
	b.WriteString(" ")
	b.WriteString(m.library)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f))
			} else {
				b.WriteString("  " + funcStyle.Render(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputParams:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(m.funcs[m.selected])))
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateRunning, stateShowResult:
		b.WriteString(fmt.Sprintf("Responses of %s:\n\n", funcStyle.Render(m.funcs[m.selected])))
		for _, r := range m.responses {
			b.WriteString(typeStyle.Render(fmt.Sprintf("[%s]", r.Type)))
			b.WriteString(" ")
			if r.Type == tonbridge.ResponseError {
				b.WriteString(errorStyle.Render(r.Params))
			} else {
				b.WriteString(resultStyle.Render(r.Params))
			}
			b.WriteString("\n")
		}
		if m.state == stateRunning {
			b.WriteString(m.spinner.View() + " waiting for responses...\n")
			break
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(c *client.Client, library string) error {
	p := tea.NewProgram(newInteractiveModel(c, library), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
