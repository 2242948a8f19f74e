package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"webrag/internal/domain"
	"webrag/internal/textutil"
)

// ChatPort is the TUI-facing subset of the service.
type ChatPort interface {
	Answer(ctx context.Context, query string, k int) (domain.Answer, error)
	Search(ctx context.Context, query string, k int) ([]domain.QueryResult, error)
}

// Options tunes the chat view.
type Options struct {
	K       int
	Timeout time.Duration
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	port      ChatPort
	opts      Options
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	answer    *domain.Answer
	passages  []domain.QueryResult
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// answerMsg carries the result of one asked question back into Update.
type answerMsg struct {
	query    string
	answer   domain.Answer
	passages []domain.QueryResult
	err      error
}

// New creates a new TUI model instance. summary is shown under the header.
func New(port ChatPort, summary string, opts Options) Model {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		port:     port,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready. Ask about the stored pages.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
		defer cancel()
		a, err := m.port.Answer(ctx, q, m.opts.K)
		if err != nil {
			return answerMsg{query: q, err: err}
		}
		var passages []domain.QueryResult
		if a.ContextUsed {
			passages, err = m.port.Search(ctx, q, m.opts.K)
		}
		return answerMsg{query: q, answer: a, passages: passages, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, max(3, msg.Height-reserved)-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer, m.passages = nil, nil
		} else {
			a := msg.answer
			m.answer, m.passages, m.cursor = &a, msg.passages, 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("Answered %q from %d sources", msg.query, len(a.Citations))
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Thinking about %q", q)
				m.input.SetValue("")
				return m, tea.Batch(m.spinner.Tick, m.ask(q))
			}
		case "down":
			if len(m.passages) > 0 {
				m.cursor = (m.cursor + 1) % len(m.passages)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if len(m.passages) > 0 {
				m.cursor = (m.cursor - 1 + len(m.passages)) % len(m.passages)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("webrag chat")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(m.answer.Response)
	if len(m.answer.Citations) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sourceStyle.Render("Sources"))
		for i, c := range m.answer.Citations {
			fmt.Fprintf(&b, "\n  [%d] %s #%d  distance=%.3f", i+1, c.Origin, c.Position, c.Distance)
		}
	}
	if len(m.passages) > 0 {
		p := m.passages[m.cursor]
		fmt.Fprintf(&b, "\n\n%s\n", sourceStyle.Render(fmt.Sprintf("Passage %d/%d  (up/down)", m.cursor+1, len(m.passages))))
		b.WriteString(highlightBestSentence(p.Text, m.lastQuery))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most content words
// with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := textutil.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range textutil.Tokenize(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
