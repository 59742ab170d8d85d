package phasedapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	textinput "github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
)

const maxLogLines = 200

// ---- Phase orchestration events ----

type phaseStartedMsg struct {
	meta phases.PhaseMetadata
}

type phaseCompletedMsg struct {
	meta   phases.PhaseMetadata
	result phases.RunResult
}

type lineMsg struct {
	line cmdrunner.Line
}

type inputRequestMsg struct {
	meta   phases.PhaseMetadata
	input  phases.InputDefinition
	reason string
}

// sequenceDoneMsg carries the report of the main sequence, before deferred
// phases run.
type sequenceDoneMsg struct {
	report *phases.Report
}

type finishedMsg struct {
	report *phases.Report
}

// ---- Observer & input handler plumbing ----

type inputResponse struct {
	value any
	err   error
}

// eventBus carries observer events, output lines and input requests to the
// program over one channel, so they arrive in the order they happened.
type eventBus struct {
	events    chan tea.Msg
	responses chan inputResponse
	quit      chan struct{}
	once      sync.Once
}

func newEventBus() *eventBus {
	return &eventBus{
		events:    make(chan tea.Msg),
		responses: make(chan inputResponse, 1),
		quit:      make(chan struct{}),
	}
}

func (b *eventBus) send(msg tea.Msg) bool {
	select {
	case b.events <- msg:
		return true
	case <-b.quit:
		return false
	}
}

func (b *eventBus) close() {
	b.once.Do(func() { close(b.quit) })
}

func (b *eventBus) PhaseStarted(meta phases.PhaseMetadata) {
	b.send(phaseStartedMsg{meta: meta})
}

func (b *eventBus) PhaseCompleted(meta phases.PhaseMetadata, result phases.RunResult) {
	b.send(phaseCompletedMsg{meta: meta, result: result})
}

func (b *eventBus) Line(l cmdrunner.Line) {
	b.send(lineMsg{line: l})
}

func (b *eventBus) RequestInput(ctx context.Context, meta phases.PhaseMetadata, input phases.InputDefinition, reason string) (any, error) {
	if !b.send(inputRequestMsg{meta: meta, input: input, reason: reason}) {
		return nil, context.Canceled
	}
	select {
	case resp := <-b.responses:
		return resp.value, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.quit:
		return nil, context.Canceled
	}
}

func (b *eventBus) respond(value any, err error) {
	select {
	case b.responses <- inputResponse{value: value, err: err}:
	default:
	}
}

func (b *eventBus) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.quit:
			return nil
		}
	}
}

// ---- Model ----

type phaseState struct {
	meta    phases.PhaseMetadata
	running bool
	result  *phases.RunResult
	logs    []string
}

func (s *phaseState) label() string {
	switch {
	case s.running:
		return "Running"
	case s.result == nil:
		return "Pending"
	default:
		return OutcomeLabel(s.result.Outcome)
	}
}

type model struct {
	runCtx context.Context
	cancel context.CancelFunc
	bus    *eventBus

	states   map[string]*phaseState
	order    []string
	current  string
	selected int

	spinner     spinner.Model
	prompt      textinput.Model
	active      *inputRequestMsg
	selectIndex int

	report      *phases.Report
	finished    bool
	quitting    bool
	helpVisible bool

	statusMsg string
	secrets   map[string]struct{}
	copy      func(string) error

	width  int
	height int
}

func newModel(runCtx context.Context, cancel context.CancelFunc, bus *eventBus, metas []phases.PhaseMetadata) *model {
	states := make(map[string]*phaseState, len(metas))
	order := make([]string, 0, len(metas))
	for _, meta := range metas {
		states[meta.ID] = &phaseState{meta: meta}
		order = append(order, meta.ID)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "enter value"
	ti.Blur()

	return &model{
		runCtx:    runCtx,
		cancel:    cancel,
		bus:       bus,
		states:    states,
		order:     order,
		spinner:   sp,
		prompt:    ti,
		statusMsg: "Starting…",
		secrets:   make(map[string]struct{}),
		copy:      clipboard.WriteAll,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.bus.wait(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		prevWidth, prevHeight := m.width, m.height
		m.width, m.height = msg.Width, msg.Height
		if (prevWidth > 0 && msg.Width < prevWidth) || (prevHeight > 0 && msg.Height < prevHeight) {
			return m, tea.ClearScreen
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case phaseStartedMsg:
		if state, ok := m.states[msg.meta.ID]; ok {
			state.running = true
			m.current = msg.meta.ID
			m.selected = m.indexOf(msg.meta.ID)
			m.appendLog(state, msg.meta.Title+" started")
		}
		m.setStatusf("Running %s", msg.meta.Title)
		return m, m.bus.wait()

	case phaseCompletedMsg:
		if state, ok := m.states[msg.meta.ID]; ok {
			res := msg.result
			state.running = false
			state.result = &res
			m.appendLog(state, fmt.Sprintf("%s: %s", msg.meta.Title, OutcomeLabel(res.Outcome)))
		}
		m.setStatusf("%s: %s", msg.meta.Title, OutcomeLabel(msg.result.Outcome))
		return m, m.bus.wait()

	case lineMsg:
		if state, ok := m.states[m.current]; ok {
			m.appendLog(state, msg.line.Text)
		}
		return m, m.bus.wait()

	case inputRequestMsg:
		m.preparePrompt(msg)
		return m, m.bus.wait()

	case sequenceDoneMsg:
		m.report = msg.report
		m.setStatus(statusLine(msg.report))
		return m, m.bus.wait()

	case finishedMsg:
		m.report = msg.report
		m.finished = true
		if m.quitting || m.runCtx.Err() != nil {
			return m, tea.Quit
		}
		m.setStatus(statusLine(msg.report) + " • press q to quit")
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		if m.finished {
			return tea.Quit
		}
		m.quitting = true
		if m.active != nil {
			m.bus.respond(nil, context.Canceled)
			m.clearPrompt()
		}
		m.cancel()
		m.setStatus("Stopping…")
		return nil
	}
	if m.active != nil {
		return m.handlePromptKey(msg)
	}

	switch msg.Type {
	case tea.KeyUp:
		m.moveSelection(-1)
	case tea.KeyDown:
		m.moveSelection(1)
	case tea.KeyEsc:
		m.helpVisible = false
	case tea.KeyRunes:
		if len(msg.Runes) != 1 {
			return nil
		}
		switch msg.Runes[0] {
		case 'k':
			m.moveSelection(-1)
		case 'j':
			m.moveSelection(1)
		case 'c', 'C':
			m.copyRemediation()
		case '?':
			m.helpVisible = !m.helpVisible
		case 'q', 'Q':
			if m.finished {
				return tea.Quit
			}
			m.setStatus("Provisioning is still running; Ctrl+C stops it")
		}
	}
	return nil
}

func (m *model) handlePromptKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyEsc {
		m.bus.respond(nil, errors.New("input cancelled"))
		m.clearPrompt()
		m.setStatus("Input cancelled")
		return nil
	}

	switch m.active.input.Kind {
	case phases.InputKindConfirm:
		switch {
		case msg.Type == tea.KeyEnter:
			def, _ := m.active.input.Default.(bool)
			m.submit(def)
		case msg.Type == tea.KeyRunes && len(msg.Runes) == 1:
			switch msg.Runes[0] {
			case 'y', 'Y':
				m.submit(true)
			case 'n', 'N':
				m.submit(false)
			}
		}
		return nil

	case phases.InputKindSelect:
		options := m.active.input.Options
		switch {
		case msg.Type == tea.KeyUp:
			m.selectIndex = wrap(m.selectIndex-1, len(options))
		case msg.Type == tea.KeyDown:
			m.selectIndex = wrap(m.selectIndex+1, len(options))
		case msg.Type == tea.KeyEnter:
			if len(options) == 0 {
				m.setStatus("No options available")
				return nil
			}
			m.submit(options[m.selectIndex].Value)
		case msg.Type == tea.KeyRunes && len(msg.Runes) == 1:
			if idx := int(msg.Runes[0] - '1'); idx >= 0 && idx < len(options) && idx < 9 {
				m.selectIndex = idx
			}
		}
		return nil
	}

	if msg.Type == tea.KeyEnter {
		m.submitText()
		return nil
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return cmd
}

func (m *model) preparePrompt(msg inputRequestMsg) {
	m.active = &msg
	m.helpVisible = false
	m.selectIndex = 0

	m.prompt.EchoMode = textinput.EchoNormal
	if msg.input.Secret || msg.input.Kind == phases.InputKindSecret {
		m.prompt.EchoMode = textinput.EchoPassword
		m.prompt.EchoCharacter = '•'
	}
	def := defaultString(msg.input.Default)
	if msg.input.Kind == phases.InputKindSelect {
		for idx, opt := range msg.input.Options {
			if opt.Value == def {
				m.selectIndex = idx
			}
		}
	}
	m.prompt.Placeholder = placeholderText(msg.input, def)
	m.prompt.SetValue("")
	m.prompt.Focus()
	m.setStatusf("%s needs %s", msg.meta.Title, msg.input.Label)
}

func (m *model) submitText() {
	input := m.active.input
	secret := input.Secret || input.Kind == phases.InputKindSecret
	value := m.prompt.Value()
	if !secret {
		value = strings.TrimSpace(value)
		if value == "" {
			value = defaultString(input.Default)
		}
	}
	if value == "" && input.Required {
		m.setStatus("Input required")
		return
	}
	if secret {
		m.secrets[value] = struct{}{}
	}
	m.submit(value)
}

func (m *model) submit(value any) {
	m.bus.respond(value, nil)
	m.clearPrompt()
	m.setStatus("Input submitted")
}

func (m *model) clearPrompt() {
	m.active = nil
	m.prompt.SetValue("")
	m.prompt.EchoMode = textinput.EchoNormal
	m.prompt.Blur()
}

func (m *model) copyRemediation() {
	state := m.selectedState()
	if state == nil || state.result == nil || state.result.Remediation == "" {
		m.setStatus("No remediation to copy")
		return
	}
	if err := m.copy(state.result.Remediation); err != nil {
		m.setStatus("Failed to copy remediation")
		return
	}
	m.setStatus("Remediation copied to clipboard")
}

func (m *model) moveSelection(delta int) {
	m.selected = wrap(m.selected+delta, len(m.order))
}

func (m *model) selectedState() *phaseState {
	if len(m.order) == 0 {
		return nil
	}
	return m.states[m.order[wrap(m.selected, len(m.order))]]
}

func (m *model) indexOf(id string) int {
	for idx, candidate := range m.order {
		if candidate == id {
			return idx
		}
	}
	return m.selected
}

func (m *model) appendLog(state *phaseState, line string) {
	line = m.redactSecrets(line)
	state.logs = append(state.logs, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), line))
	if len(state.logs) > maxLogLines {
		state.logs = state.logs[len(state.logs)-maxLogLines:]
	}
}

func (m *model) redactSecrets(text string) string {
	for secret := range m.secrets {
		if secret != "" {
			text = strings.ReplaceAll(text, secret, "[secret]")
		}
	}
	return text
}

func (m *model) setStatus(msg string) {
	m.statusMsg = m.redactSecrets(msg)
}

func (m *model) setStatusf(format string, args ...any) {
	m.setStatus(fmt.Sprintf(format, args...))
}

// ---- View ----

func (m *model) View() string {
	sections := []string{m.renderHeader(), m.renderBody()}
	if m.active != nil {
		sections = append(sections, m.renderPromptPanel())
	}
	if m.report != nil {
		sections = append(sections, styleForWidth(detailPanelStyle, m.viewportWidth()).Render(RenderSummary(m.report, 0)))
	}
	sections = append(sections, statusBarStyle.Render(m.statusMsg))
	if m.helpVisible {
		sections = append(sections, renderHelp())
	} else {
		sections = append(sections, footerStyle.Render("↑/↓ or j/k move • c copy remediation • ? help • Ctrl+C stop • q quit when done"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *model) renderHeader() string {
	done := 0
	for _, st := range m.states {
		if st.result != nil {
			done++
		}
	}
	title := titleStyle.Render("App Provisioner")
	progress := subtitleStyle.Render(fmt.Sprintf("Progress: %d/%d", done, len(m.order)))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", progress)
}

func (m *model) renderBody() string {
	width := m.viewportWidth()
	if width < 80 {
		return lipgloss.JoinVertical(lipgloss.Left, m.renderPhaseList(width), m.renderPhaseDetails(width))
	}
	left := width * 2 / 5
	right := width - left - 2
	gap := lipgloss.NewStyle().Width(2).Render(" ")
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderPhaseList(left), gap, m.renderPhaseDetails(right))
}

func (m *model) renderPhaseList(width int) string {
	items := make([]string, 0, len(m.order))
	for idx, id := range m.order {
		items = append(items, m.phaseItemView(m.states[id], idx == m.selected))
	}
	return styleForWidth(listPanelStyle, width).Render(strings.Join(items, "\n"))
}

func (m *model) phaseItemView(state *phaseState, selected bool) string {
	var icon string
	style := pendingStyle
	switch {
	case state.running:
		icon, style = m.spinner.View(), runningStyle
	case state.result == nil:
		icon = "•"
	default:
		icon, style = outcomeIcons[state.result.Outcome], outcomeStyles[state.result.Outcome]
	}
	if selected {
		style = style.Copy().Bold(true).Underline(true)
	}
	return style.Render(fmt.Sprintf("%s %s", icon, state.meta.Title))
}

func (m *model) renderPhaseDetails(width int) string {
	state := m.selectedState()
	if state == nil {
		return styleForWidth(detailPanelStyle, width).Render("No phases registered")
	}
	body := []string{
		detailTitleStyle.Render(state.meta.Title),
		infoTextStyle.Render(state.meta.Description),
		infoTextStyle.Render("Status: " + state.label()),
	}
	if res := state.result; res != nil {
		if res.Detail != "" {
			body = append(body, infoTextStyle.Render("Detail: "+m.redactSecrets(res.Detail)))
		}
		if res.Err != nil {
			body = append(body, errorTextStyle.Render("Error: "+m.redactSecrets(causeOf(res.Err))))
		}
		if res.Remediation != "" {
			body = append(body, infoTextStyle.Render("Fix: "+res.Remediation))
		}
	}
	if len(state.logs) > 0 {
		entries := state.logs
		if len(entries) > 8 {
			entries = entries[len(entries)-8:]
		}
		body = append(body, logSectionStyle.Render("Recent output:"))
		for _, line := range entries {
			body = append(body, logTextStyle.Render(line))
		}
	}
	return styleForWidth(detailPanelStyle, width).Render(strings.Join(body, "\n"))
}

func (m *model) renderPromptPanel() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s • %s\n", m.active.meta.Title, m.active.input.Label)
	if m.active.input.Description != "" {
		b.WriteString(m.active.input.Description + "\n")
	}
	if m.active.reason != "" {
		b.WriteString(infoTextStyle.Render("Reason: "+sanitizeInputReason(m.active.input, m.active.reason)) + "\n")
	}
	switch m.active.input.Kind {
	case phases.InputKindConfirm:
		def, _ := m.active.input.Default.(bool)
		hint := "[y/N]"
		if def {
			hint = "[Y/n]"
		}
		b.WriteString(hint)
	case phases.InputKindSelect:
		for idx, opt := range m.active.input.Options {
			cursor := " "
			if idx == m.selectIndex {
				cursor = ">"
			}
			fmt.Fprintf(&b, "%s %d. %s\n", cursor, idx+1, opt.Label)
		}
	default:
		b.WriteString("> " + m.prompt.View())
	}
	return styleForWidth(promptPanelStyle, m.viewportWidth()).Render(b.String())
}

func renderHelp() string {
	help := []string{
		"Key Bindings:",
		"  ↑/↓ or j/k  Move phase selection",
		"  Enter        Submit input",
		"  y / n        Answer a yes/no question",
		"  c            Copy the selected phase's remediation",
		"  Esc          Cancel prompt or hide help",
		"  ?            Toggle this help",
		"  Ctrl+C       Stop provisioning",
		"  q            Quit once finished",
	}
	return helpStyle.Render(strings.Join(help, "\n"))
}

func (m *model) viewportWidth() int {
	if m.width > 0 {
		return max(m.width, 40)
	}
	return 100
}

func sanitizeInputReason(def phases.InputDefinition, reason string) string {
	if def.Secret || def.Kind == phases.InputKindSecret {
		return "The password was rejected; please provide a new value."
	}
	return reason
}

func placeholderText(def phases.InputDefinition, defaultValue string) string {
	if def.Kind == phases.InputKindSecret {
		return "enter value"
	}
	if defaultValue != "" {
		return defaultValue
	}
	return def.Label
}

func defaultString(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func wrap(idx, n int) int {
	if n == 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}
