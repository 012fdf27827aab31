// Package console provides the Bubble Tea chat front-end for plot commands.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/cfplot/internal/bot"
	"github.com/verte-zerg/cfplot/internal/render"
)

const (
	previewHeight   = 10
	minPreviewWidth = 20
	previewMargin   = 10
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// Handler answers one chat request. *bot.Bot implements it.
type Handler interface {
	Handle(ctx context.Context, req bot.Request) bot.Reply
}

type entryKind int

const (
	entryCommand entryKind = iota
	entryTitle
	entryText
	entryError
	entryPreview
)

type entry struct {
	kind entryKind
	text string
}

type replyMsg struct {
	req   bot.Request
	reply bot.Reply
}

// Options configures the console.
type Options struct {
	Handler Handler
	// Member is the chat member the commands are issued as.
	Member string
	// OutDir receives rendered images.
	OutDir string
	Now    func() time.Time
}

// Model implements the Bubble Tea chat console.
type Model struct {
	ctx     context.Context
	handler Handler
	member  string
	outDir  string
	now     func() time.Time

	input    textinput.Model
	viewport viewport.Model
	entries  []entry
	pending  int

	width  int
	height int
}

// NewModel constructs a console model. Commands run with ctx.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:      ctx,
		handler:  opts.Handler,
		member:   opts.Member,
		outDir:   opts.OutDir,
		now:      opts.Now,
		viewport: viewport.New(0, 0),
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.input = textinput.New()
	m.input.Prompt = promptStyle.Render(m.member+"> ")
	m.input.Placeholder = "rating tourist +peak"
	m.input.CharLimit = 0
	m.input.Cursor.SetMode(cursor.CursorBlink)
	m.input.Focus()
	m.entries = append(m.entries, entry{kind: entryText, text: "Type a command, `help` for the list, `quit` to leave."})
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.refresh()
		return m, nil
	case replyMsg:
		m.pending--
		m.appendReply(msg.req, msg.reply)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return m.transcript() + "\n" + m.input.View()
	}
	return strings.Join([]string{m.viewport.View(), m.input.View(), m.renderFooter()}, "\n")
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}
	if line == "quit" || line == "exit" {
		return m, tea.Quit
	}
	fields := strings.Fields(line)
	req := bot.Request{Member: m.member, Command: fields[0], Args: fields[1:]}
	m.entries = append(m.entries, entry{kind: entryCommand, text: "> " + line})
	m.pending++
	m.refresh()
	return m, runCommand(m.ctx, m.handler, req)
}

// runCommand answers req off the UI goroutine.
func runCommand(ctx context.Context, h Handler, req bot.Request) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{req: req, reply: h.Handle(ctx, req)}
	}
}

func (m *Model) appendReply(req bot.Request, reply bot.Reply) {
	if reply.Err != "" {
		m.entries = append(m.entries, entry{kind: entryError, text: reply.Err})
		return
	}
	if reply.Title != "" {
		m.entries = append(m.entries, entry{kind: entryTitle, text: reply.Title})
	}
	if reply.Text != "" {
		m.entries = append(m.entries, entry{kind: entryText, text: reply.Text})
	}
	if reply.Figure != nil {
		preview, err := render.Text{Width: m.previewWidth(), Height: previewHeight}.Render(*reply.Figure)
		if err == nil && len(preview) > 0 {
			m.entries = append(m.entries, entry{kind: entryPreview, text: strings.TrimRight(string(preview), "\n")})
		}
	}
	if len(reply.Image) > 0 {
		path, err := reply.SaveImage(m.outDir, strings.ToLower(req.Command), m.now())
		if err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: fmt.Sprintf("failed to save image: %v", err)})
			return
		}
		m.entries = append(m.entries, entry{kind: entryText, text: "Saved " + path})
	}
}

func (m *Model) previewWidth() int {
	return max(minPreviewWidth, m.width-previewMargin)
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(1, m.height-2)
	m.input.Width = max(10, m.width-lipgloss.Width(m.input.Prompt)-1)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) transcript() string {
	parts := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		parts = append(parts, m.renderEntry(e))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderEntry(e entry) string {
	switch e.kind {
	case entryCommand:
		return commandStyle.Render(wrapText(e.text, m.width))
	case entryTitle:
		return titleStyle.Render(wrapText(e.text, m.width))
	case entryError:
		return errorStyle.Render(wrapText(e.text, m.width))
	case entryPreview:
		lines := strings.Split(e.text, "\n")
		for i, line := range lines {
			lines[i] = truncateLine(line, m.width)
		}
		return strings.Join(lines, "\n")
	}
	return replyStyle.Render(wrapText(e.text, m.width))
}

func (m *Model) renderFooter() string {
	status := "ready"
	if m.pending > 0 {
		status = fmt.Sprintf("%d running", m.pending)
	}
	footer := fmt.Sprintf("%s  ·  images in %s  ·  esc to quit", status, m.outDir)
	return footerStyle.Render(truncateLine(footer, m.width))
}
