package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatService "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
)

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

const inputPlaceholder = "Type your question"

// Auth is the account surface the terminal view needs.
type Auth interface {
	Login(ctx context.Context, email, password string) error
	Logout()
	Authenticated() bool
}

// Chat is the session surface the terminal view renders.
type Chat interface {
	Submit(ctx context.Context, text string) error
	Snapshot() chat.Snapshot
}

type screen int

const (
	screenLogin screen = iota
	screenChat
)

type eventMsg event.Event

type eventsClosedMsg struct{}

type copiedMsg struct {
	err error
}

// Option configures a Model.
type Option func(*Model)

// WithPlainText disables markdown rendering of answers.
func WithPlainText() Option {
	return func(m *Model) {
		m.markdown = false
	}
}

// WithBackend sets the backend address shown on the login screen.
func WithBackend(url string) Option {
	return func(m *Model) {
		m.backend = url
	}
}

// Model is the bubbletea model of the terminal frontend.
type Model struct {
	ctx    context.Context
	auth   Auth
	chat   Chat
	events <-chan event.Event

	screen   screen
	login    loginForm
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	markdown bool
	backend  string

	snapshot chat.Snapshot
	status   string
	width    int
	height   int
}

// New returns the terminal model. events is usually a bus subscription and
// may be nil, in which case the view refreshes only after its own actions.
func New(ctx context.Context, auth Auth, session Chat, events <-chan event.Event, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.Prompt = "│ "
	input.CharLimit = 4096
	input.Width = 76

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		auth:     auth,
		chat:     session,
		events:   events,
		login:    newLoginForm(),
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		markdown: true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.markdown {
		m.renderer = newRenderer(80)
	}

	if auth.Authenticated() {
		m.screen = screenChat
		m.input.Focus()
		m.refresh(session.Snapshot())
	}
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Debug().Err(err).Msg("[tui] markdown renderer unavailable")
		return nil
	}
	return renderer
}

func waitForEvent(events <-chan event.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case eventMsg:
		return m.handleEvent(event.Event(msg))

	case eventsClosedMsg:
		m.events = nil
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "Copy failed: " + msg.err.Error()
		} else {
			m.status = "Copied last answer"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	const chrome = 6
	m.viewport.Width = max(width-4, 20)
	m.viewport.Height = max(height-chrome, 3)
	m.input.Width = max(width-6, 10)
	if m.markdown {
		m.renderer = newRenderer(max(width-8, 20))
	}
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) enterChat() (tea.Model, tea.Cmd) {
	m.screen = screenChat
	m.status = ""
	m.input.Focus()
	m.refresh(m.chat.Snapshot())
	return m, textinput.Blink
}

func (m Model) enterLogin(message string) Model {
	m.screen = screenLogin
	m.input.Blur()
	m.input.SetValue("")
	m.login.reset("")
	m.login.err = message
	return m
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlL:
		m.auth.Logout()
		m = m.enterLogin("")
		m.login.notice = "Signed out."
		return m, nil

	case tea.KeyCtrlY:
		answer, ok := lastAnswer(m.snapshot)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return copiedMsg{err: clipboardWriteAll(answer)}
		}

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		return m.submit()
	}

	if m.snapshot.Sending() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	err := m.chat.Submit(m.ctx, m.input.Value())
	switch {
	case err == nil:
		m.input.SetValue("")
		m.status = ""
	case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, chatService.ErrSendInFlight):
		return m, nil
	default:
		m.status = err.Error()
	}
	m.refresh(m.chat.Snapshot())
	return m, m.spinner.Tick
}

func (m Model) handleEvent(ev event.Event) (tea.Model, tea.Cmd) {
	m.refresh(ev.Snapshot)
	if ev.Kind == event.KindRedirect && m.screen == screenChat {
		m = m.enterLogin(ev.Snapshot.Error)
	}
	return m, waitForEvent(m.events)
}

func (m *Model) refresh(snap chat.Snapshot) {
	m.snapshot = snap
	if snap.Sending() {
		m.input.Placeholder = "Waiting for the answer…"
		m.input.Blur()
	} else {
		m.input.Placeholder = inputPlaceholder
		if m.screen == screenChat {
			m.input.Focus()
		}
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	if len(m.snapshot.Messages) == 0 {
		b.WriteString(dimStyle.Render("Ask a question to get started."))
		b.WriteString("\n")
	}

	for _, msg := range m.snapshot.Messages {
		if msg.Role == chat.RoleUser {
			b.WriteString(userRoleStyle.Render(" You "))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
			continue
		}

		b.WriteString(assistantRoleStyle.Render(" Assistant "))
		b.WriteString("\n")
		b.WriteString(m.renderMarkdown(msg.Content))
		b.WriteString("\n")
		if tools := chat.UniqueTools(msg.Tools); len(tools) > 0 {
			b.WriteString(toolCallStyle.Render("Tools used: " + strings.Join(tools, ", ")))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.snapshot.Sending() {
		b.WriteString(m.spinner.View() + " Thinking…\n")
	}
	if m.snapshot.Error != "" {
		b.WriteString(errorStyle.Render(m.snapshot.Error))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func lastAnswer(snap chat.Snapshot) (string, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == chat.RoleAssistant {
			return snap.Messages[i].Content, true
		}
	}
	return "", false
}

func (m Model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}

	status := m.status
	if status == "" {
		status = fmt.Sprintf("%d messages", len(m.snapshot.Messages))
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		titleStyle.Render("Support chat"),
		m.viewport.View(),
		m.input.View(),
		statusBarStyle.Render(status),
		helpStyle.Render("Enter: send  Ctrl+Y: copy answer  Ctrl+L: sign out  Ctrl+C: quit"),
	)
}
