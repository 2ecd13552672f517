package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"moneymentor/internal/domain"
	"moneymentor/internal/service"
	"moneymentor/internal/tokenize"
)

// Asker is the TUI-facing subset of the service.
type Asker interface {
	Ask(ctx context.Context, req service.AskRequest) (service.Answer, error)
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	asker     Asker
	input     textinput.Model
	viewport  viewport.Model
	mode      domain.Mode
	k         int
	answer    *service.Answer
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

type answerMsg struct {
	answer  service.Answer
	err     error
	elapsed time.Duration
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, asker Asker, mode domain.Mode, k int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a money question and press Enter"
	ti.Focus()
	ti.CharLimit = 1000
	vp := viewport.New(0, 0)
	if mode == "" {
		mode = domain.ModeQuality
	}
	return Model{
		ctx:      ctx,
		asker:    asker,
		input:    ti,
		viewport: vp,
		mode:     mode,
		k:        k,
		summary:  summary,
		status:   "Ready. Tab switches retrieval mode.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	req := service.AskRequest{Question: q, K: m.k, Mode: m.mode}
	return func() tea.Msg {
		start := time.Now()
		ans, err := m.asker.Ask(m.ctx, req)
		return answerMsg{answer: ans, err: err, elapsed: time.Since(start)}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + 1 + qh + 1 // header, summary, mode; status; spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			a := msg.answer
			m.answer = &a
			m.cursor = 0
			m.status = fmt.Sprintf("Answered by %s (%s) in %s", a.Tool, a.Model, msg.elapsed.Round(time.Millisecond))
			if a.Diagnostic != "" {
				m.status += " | " + a.Diagnostic
			}
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.lastQuery = q
			m.status = fmt.Sprintf("Thinking (%s mode)...", m.mode)
			return m, m.ask(q)
		case "tab":
			if m.mode == domain.ModeQuality {
				m.mode = domain.ModeFast
			} else {
				m.mode = domain.ModeQuality
			}
			m.status = fmt.Sprintf("Retrieval mode: %s", m.mode)
			return m, nil
		case "down":
			if n := m.sourceCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.sourceCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) sourceCount() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Sources)
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("MoneyMentor")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	mode := modeStyle.Render("mode: " + string(m.mode))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + mode + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(m.answer.Answer)
	if n := len(m.answer.Sources); n > 0 {
		s := m.answer.Sources[m.cursor]
		b.WriteString("\n\n")
		b.WriteString(sourceTitleStyle.Render(fmt.Sprintf("Source %d/%d  %s#%d  score=%.3f", m.cursor+1, n, s.Source, s.ChunkID, s.Score)))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(s.Text, m.lastQuery))
	}
	return b.String()
}

var (
	resultBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	modeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	sentenceRe       = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// bestSentence returns the index of the sentence sharing the most distinct
// query terms, the first one on ties.
func bestSentence(sentences []string, query string) int {
	q := tokenize.TermSet(query)
	best, bestScore := 0, -1
	for i, s := range sentences {
		score := 0
		for t := range tokenize.TermSet(s) {
			if _, ok := q[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	if len(tokenize.TermSet(query)) == 0 {
		return strings.Join(sentences, " ")
	}
	idx := bestSentence(sentences, query)
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == idx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}
