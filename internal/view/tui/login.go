package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	authService "github.com/zhouzirui/agentdesk/frontend/internal/service/auth"
)

const (
	fieldEmail = iota
	fieldPassword
	fieldCount
)

type loginForm struct {
	email    textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	err      string
	notice   string
}

type loginResultMsg struct {
	err error
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 128
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginForm{email: email, password: password, focus: fieldEmail}
}

func (f *loginForm) focusCurrent() {
	f.email.Blur()
	f.password.Blur()
	if f.focus == fieldEmail {
		f.email.Focus()
		return
	}
	f.password.Focus()
}

func (f *loginForm) reset(notice string) {
	f.password.SetValue("")
	f.busy = false
	f.err = ""
	f.notice = notice
	f.focus = fieldEmail
	f.focusCurrent()
}

func loginCmd(ctx context.Context, auth Auth, email, password string) tea.Cmd {
	return func() tea.Msg {
		return loginResultMsg{err: auth.Login(ctx, email, password)}
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	if f.busy {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		f.focus = (f.focus + 1) % fieldCount
		f.focusCurrent()
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		f.focus = (f.focus - 1 + fieldCount) % fieldCount
		f.focusCurrent()
		return m, nil
	case tea.KeyEnter:
		if f.focus == fieldEmail {
			f.focus = fieldPassword
			f.focusCurrent()
			return m, nil
		}
		f.busy = true
		f.err = ""
		f.notice = ""
		return m, tea.Batch(loginCmd(m.ctx, m.auth, f.email.Value(), f.password.Value()), m.spinner.Tick)
	}

	var cmd tea.Cmd
	if f.focus == fieldEmail {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return m, cmd
}

func (m Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.login.busy = false
	if msg.err != nil {
		m.login.err = authService.DisplayMessage(msg.err)
		m.login.password.SetValue("")
		return m, nil
	}
	m.login.reset("")
	return m.enterChat()
}

func (m Model) viewLogin() string {
	f := m.login

	status := helpStyle.Render("Enter: next/sign in  Tab: switch field  Ctrl+C: quit")
	switch {
	case f.busy:
		status = m.spinner.View() + " Signing in…"
	case f.err != "":
		status = errorStyle.Render(f.err)
	case f.notice != "":
		status = noticeStyle.Render(f.notice)
	}

	content := fmt.Sprintf(
		"%s\n%s\n\n%s %s\n\n%s %s\n\n%s",
		titleStyle.Render("Sign in"),
		dimStyle.Render(m.backend),
		fieldLabel("Email:", f.focus == fieldEmail), f.email.View(),
		fieldLabel("Password:", f.focus == fieldPassword), f.password.View(),
		status,
	)

	box := boxStyle.Render(content)
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
