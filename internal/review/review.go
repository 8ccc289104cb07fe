// Package review asks an operator to settle the steps the classifier could
// not decide on its own. Answers become step-id overrides.
package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"douane/internal/classify"
)

// ErrCancelled is returned when the operator quits before the last question.
var ErrCancelled = errors.New("review cancelled")

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#667eea")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	suggestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// Item is one step awaiting a decision.
type Item struct {
	ChapterID string
	StepID    string
	Title     string
	Type      string
	Rule      classify.Rule
	// Suggested is the classifier's tentative category, empty when the step
	// is unresolved.
	Suggested classify.Category
}

// Answer is the operator's decision for one item.
type Answer struct {
	Item     Item
	Category classify.Category
}

// Items lists the steps of res that need review, in corpus order. Steps
// without an id are left out since an override cannot target them.
func Items(res *classify.Result) []Item {
	var out []Item
	for _, o := range res.ForReview() {
		if o.StepID == "" {
			continue
		}
		it := Item{ChapterID: o.ChapterID, StepID: o.StepID, Title: o.Title, Type: o.Type, Rule: o.Decision.Rule}
		if o.Decision.Resolved() {
			it.Suggested = o.Decision.Category()
		}
		out = append(out, it)
	}
	return out
}

// Overrides converts answers to step-id overrides.
func Overrides(answers []Answer) classify.OverrideList {
	out := make(classify.OverrideList, 0, len(answers))
	for _, a := range answers {
		out = append(out, classify.Override{StepID: a.Item.StepID, Category: a.Category})
	}
	return out
}

// parseAnswer reads one reply. "c" and "v" (or the full words) choose a
// category, "s" skips, and an empty reply accepts the suggestion or skips
// when there is none.
func parseAnswer(s string, suggested classify.Category) (classify.Category, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "consultation":
		return classify.Consultation, true, nil
	case "v", "validation":
		return classify.Validation, true, nil
	case "s", "skip":
		return "", false, nil
	case "":
		return suggested, suggested != "", nil
	}
	return "", false, fmt.Errorf("unknown answer %q: use c, v or s", s)
}

// ---------------------------------------------------------------------------
// Prompt model
// ---------------------------------------------------------------------------

// model is a bubbletea model that asks about one step at a time.
type model struct {
	items   []Item
	idx     int
	input   textinput.Model
	answers []Answer
	err     error
	done    bool
}

func newModel(items []Item) model {
	ti := textinput.New()
	ti.Placeholder = "c / v / s"
	ti.CharLimit = 32
	ti.Focus()
	return model{items: items, input: ti}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			it := m.items[m.idx]
			cat, keep, err := parseAnswer(m.input.Value(), it.Suggested)
			if err != nil {
				m.err = err
				m.input.Reset()
				return m, nil
			}
			m.err = nil
			if keep {
				m.answers = append(m.answers, Answer{Item: it, Category: cat})
			}
			m.input.Reset()
			if m.idx < len(m.items)-1 {
				m.idx++
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.done || len(m.items) == 0 {
		return ""
	}
	it := m.items[m.idx]
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("[%d/%d] %s / %s", m.idx+1, len(m.items), it.ChapterID, it.StepID)))
	b.WriteString("\n")
	typ := it.Type
	if typ == "" {
		typ = "(none)"
	}
	b.WriteString(detailStyle.Render(fmt.Sprintf("%q  type %s  rule %s", it.Title, typ, it.Rule)))
	b.WriteString("\n")
	if it.Suggested != "" {
		b.WriteString(suggestStyle.Render("suggested: " + string(it.Suggested) + " (enter to accept)"))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("consultation, validation or skip: " + m.input.View() + "\n")
	return b.String()
}

// Run prompts for every item and returns the answers given. Skipped items
// produce no answer.
func Run(items []Item, opts ...tea.ProgramOption) ([]Answer, error) {
	if len(items) == 0 {
		return nil, nil
	}
	p := tea.NewProgram(newModel(items), opts...)
	result, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("review prompt: %w", err)
	}
	final, ok := result.(model)
	if !ok || !final.done {
		return nil, ErrCancelled
	}
	return final.answers, nil
}
