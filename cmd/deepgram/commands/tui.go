package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/haivivi/deepgram-voice/pkg/cli"
)

// presenter receives what a live session produces. The plain presenter
// prints it; the TUI presenter draws it in a frame.
type presenter interface {
	Transcript(speaker, text string, final bool)
	Event(format string, args ...any)
	Status(status string)
}

// plainPresenter prints final lines to stdout and interim results and
// events to stderr.
type plainPresenter struct {
	interim bool
}

func (p *plainPresenter) Transcript(speaker, text string, final bool) {
	if p.interim {
		fmt.Fprint(os.Stderr, "\r\033[K")
		p.interim = false
	}
	if !final {
		if text != "" {
			fmt.Fprintf(os.Stderr, "… %s", text)
			p.interim = true
		}
		return
	}
	if text == "" {
		return
	}
	if speaker != "" {
		fmt.Printf("%s: %s\n", speaker, text)
		return
	}
	fmt.Println(text)
}

func (p *plainPresenter) Event(format string, args ...any) {
	printVerbose(format, args...)
}

func (p *plainPresenter) Status(status string) {
	printVerbose("status: %s", status)
}

type transcriptMsg struct {
	speaker string
	text    string
	final   bool
}

type eventMsg string

type statusMsg string

type logMsg string

type sessionDoneMsg struct{ err error }

// sessionModel is the bubbletea model behind --tui.
type sessionModel struct {
	title      string
	help       string
	transcript *cli.Transcript
	events     []string
	logs       []string
	status     string
	logWriter  *cli.LogWriter

	styles cli.Styles
	width  int
	height int

	err      error
	quitting bool
}

func newSessionModel(title string, logWriter *cli.LogWriter) *sessionModel {
	styles := cli.NewStyles(cli.DefaultTheme)
	return &sessionModel{
		title:      title,
		help:       "q/Ctrl+C=quit",
		transcript: cli.NewTranscript(200, &styles.Interim),
		status:     "connecting",
		logWriter:  logWriter,
		styles:     styles,
	}
}

func (m *sessionModel) Init() tea.Cmd {
	return tea.Batch(m.listenLogs(), m.tick())
}

func (m *sessionModel) listenLogs() tea.Cmd {
	if m.logWriter == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-m.logWriter.Channel()
		if !ok {
			return nil
		}
		return logMsg(line)
	}
}

type tickMsg time.Time

func (m *sessionModel) tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyRunes:
			if len(msg.Runes) == 1 && msg.Runes[0] == 'q' {
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case transcriptMsg:
		text := msg.text
		if msg.speaker != "" && text != "" {
			text = msg.speaker + ": " + text
		}
		m.transcript.Update(text, msg.final)

	case eventMsg:
		m.events = appendCapped(m.events, time.Now().Format("15:04:05")+" "+string(msg), 50)

	case statusMsg:
		m.status = string(msg)

	case logMsg:
		m.logs = appendCapped(m.logs, string(msg), 50)
		return m, m.listenLogs()

	case sessionDoneMsg:
		m.err = msg.err
		m.status = "closed"
		return m, tea.Quit

	case tickMsg:
		return m, m.tick()
	}
	return m, nil
}

func appendCapped(lines []string, line string, n int) []string {
	lines = append(lines, line)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (m *sessionModel) View() string {
	if m.quitting {
		return ""
	}
	frame := cli.Frame{
		Styles: m.styles,
		Title:  m.title,
		Status: m.status,
		Sections: []cli.Section{
			{Label: "Transcript", Weight: 3, Content: m.transcript.Lines},
			{Label: "Events", Content: func() []string { return m.events }},
			{Label: "Log", Content: func() []string { return m.logs }},
		},
		Help: m.help,
	}
	return frame.Render(m.width, m.height)
}

// tuiPresenter forwards session output to a running program.
type tuiPresenter struct {
	p *tea.Program
}

func (t tuiPresenter) Transcript(speaker, text string, final bool) {
	t.p.Send(transcriptMsg{speaker: speaker, text: text, final: final})
}

func (t tuiPresenter) Event(format string, args ...any) {
	t.p.Send(eventMsg(fmt.Sprintf(format, args...)))
}

func (t tuiPresenter) Status(status string) {
	t.p.Send(statusMsg(status))
}

// runLive runs a session with its output either printed or, with useTUI,
// drawn in a full-screen frame. run must return when ctx is cancelled;
// quitting the TUI cancels ctx.
func runLive(ctx context.Context, title string, useTUI bool, run func(ctx context.Context, out presenter) error) error {
	if !useTUI {
		return run(ctx, &plainPresenter{})
	}

	// Logs would tear the frame; show them inside it instead.
	logWriter := cli.NewLogWriter(200)
	setupLogging(logWriter)
	defer setupLogging(os.Stderr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newSessionModel(title, logWriter)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	runErr := make(chan error, 1)
	go func() {
		err := run(ctx, tuiPresenter{p})
		runErr <- err
		p.Send(sessionDoneMsg{err: err})
	}()

	_, err := p.Run()
	cancel()
	sessErr := <-runErr
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	for _, line := range model.transcript.Finals() {
		fmt.Println(line)
	}
	return sessErr
}
