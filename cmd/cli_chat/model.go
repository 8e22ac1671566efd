package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scholar-assistant/internal/domain"
	"scholar-assistant/internal/service"
)

type chatStyles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Chip      lipgloss.Style
	ChipOn    lipgloss.Style
	Status    lipgloss.Style
	Listening lipgloss.Style
	Time      lipgloss.Style
}

func defaultStyles() chatStyles {
	return chatStyles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1),
		User:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Chip:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Border(lipgloss.RoundedBorder()).Padding(0, 1),
		ChipOn:    lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		Listening: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Time:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// snapshotMsg avisa que la sesión cambió fuera de Update (timers).
type snapshotMsg struct{}

// chatModel es la vista bubbletea de una única sesión del asistente.
type chatModel struct {
	ctrl    *service.SessionController
	changes <-chan struct{}

	snap      domain.SessionSnapshot
	input     textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model
	styles    chatStyles
	chipIndex int
	ready     bool
	quitting  bool
}

func newChatModel(ctrl *service.SessionController, changes <-chan struct{}) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about scholarships... (Enter send, Tab suggestion, Ctrl+V voice, Esc quit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 1024
	ti.Width = 80

	styles := defaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Status

	vp := viewport.New(80, 20)

	m := chatModel{
		ctrl:      ctrl,
		changes:   changes,
		input:     ti,
		spinner:   sp,
		viewport:  vp,
		styles:    styles,
		chipIndex: -1,
	}
	m.apply(ctrl.Snapshot())
	return m
}

// waitForChange bloquea hasta que un timer muta la sesión.
func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return snapshotMsg{}
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.changes))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = msg.Height - 8
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refreshViewport()
		return m, nil

	case snapshotMsg:
		m.apply(m.ctrl.Snapshot())
		return m, waitForChange(m.changes)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.ctrl.CloseSession()
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEnter:
		if m.ctrl.SubmitText(m.input.Value()) {
			m.chipIndex = -1
		}
		m.apply(m.ctrl.Snapshot())
		return m, nil

	case tea.KeyCtrlV:
		m.ctrl.ToggleVoice()
		m.apply(m.ctrl.Snapshot())
		return m, nil

	case tea.KeyTab:
		m.cycleChip()
		m.apply(m.ctrl.Snapshot())
		return m, nil
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.ctrl.UpdateDraft(after)
		m.snap = m.ctrl.Snapshot()
	}
	return m, cmd
}

// cycleChip recorre las acciones rápidas (solo con el saludo) o las
// sugerencias del último mensaje del asistente.
func (m *chatModel) cycleChip() {
	if n := len(m.snap.QuickActions); n > 0 {
		m.chipIndex = (m.chipIndex + 1) % n
		m.ctrl.SelectQuickAction(m.chipIndex)
		return
	}
	chips := m.suggestions()
	if len(chips) == 0 {
		return
	}
	m.chipIndex = (m.chipIndex + 1) % len(chips)
	m.ctrl.SelectSuggestion(chips[m.chipIndex])
}

func (m chatModel) suggestions() []string {
	last, ok := m.snap.LastMessage()
	if !ok || last.Sender != domain.SenderAssistant {
		return nil
	}
	return last.Suggestions
}

func (m *chatModel) apply(snap domain.SessionSnapshot) {
	if snap.Revision < m.snap.Revision {
		return
	}
	if len(snap.Messages) != len(m.snap.Messages) {
		m.chipIndex = -1
	}
	m.snap = snap
	if m.input.Value() != snap.PendingInput {
		m.input.SetValue(snap.PendingInput)
		m.input.CursorEnd()
	}
	m.refreshViewport()
}

func (m *chatModel) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.snap.Messages {
		stamp := m.styles.Time.Render(msg.Timestamp.Local().Format("15:04"))
		switch msg.Sender {
		case domain.SenderUser:
			fmt.Fprintf(&b, "%s %s\n%s\n\n", m.styles.User.Render("You"), stamp, msg.Text)
		default:
			fmt.Fprintf(&b, "%s %s\n%s\n\n", m.styles.Assistant.Bold(true).Render("Assistant"), stamp, m.styles.Assistant.Render(msg.Text))
		}
	}
	return b.String()
}

func (m chatModel) renderChips() string {
	var labels []string
	if len(m.snap.QuickActions) > 0 {
		for _, qa := range m.snap.QuickActions {
			labels = append(labels, qa.Label)
		}
	} else {
		labels = m.suggestions()
	}
	if len(labels) == 0 {
		return ""
	}
	chips := make([]string, 0, len(labels))
	for i, label := range labels {
		style := m.styles.Chip
		if i == m.chipIndex {
			style = m.styles.ChipOn
		}
		chips = append(chips, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func (m chatModel) status() string {
	switch {
	case m.snap.IsListening:
		return m.styles.Listening.Render("● listening...")
	case m.snap.IsTyping:
		return m.spinner.View() + m.styles.Status.Render(" assistant is typing...")
	default:
		return ""
	}
}

func (m chatModel) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render("🎓 Scholarship Assistant"),
		m.viewport.View(),
		m.renderChips(),
		m.status(),
		m.input.View(),
	)
}
