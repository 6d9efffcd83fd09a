package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/report"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
)

// labModel is the bubbletea model of the strategy lab. It owns a single
// session, so no locking is needed.
type labModel struct {
	sess    *session.Session
	builder *report.Builder
	cursor  int
	naming  bool
	name    textinput.Model
	saved   []models.HistoryRecord
	status  string
}

func newLabModel(sess *session.Session, builder *report.Builder) labModel {
	ti := textinput.New()
	ti.Placeholder = "record name (empty for a generated one)"
	ti.CharLimit = 128
	return labModel{sess: sess, builder: builder, name: ti}
}

func (m labModel) Init() tea.Cmd {
	return nil
}

func (m labModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.naming {
		return m.updateNaming(key)
	}

	evals := m.sess.Strategies()
	switch key.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(evals)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.toggle(evals[m.cursor].ID)
	case "1", "2", "3", "4", "5", "6":
		i := int(key.String()[0] - '1')
		if i < len(evals) {
			m.cursor = i
			m.toggle(evals[i].ID)
		}
	case "s":
		m.naming = true
		m.status = ""
		return m, m.name.Focus()
	}
	return m, nil
}

func (m labModel) updateNaming(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.naming = false
		m.name.Blur()
		m.name.Reset()
		return m, nil
	case tea.KeyEnter:
		metrics := m.sess.Metrics()
		rec := m.builder.HistoryRecord(strings.TrimSpace(m.name.Value()), m.sess.Current(), metrics.Baseline, metrics.Current)
		m.saved = append(m.saved, rec)
		m.status = fmt.Sprintf("saved %q (%.1f%% CO2 offset)", rec.Name, rec.CarbonOffsetPercent)
		m.naming = false
		m.name.Blur()
		m.name.Reset()
		return m, nil
	}
	var cmd tea.Cmd
	m.name, cmd = m.name.Update(key)
	return m, cmd
}

func (m *labModel) toggle(id string) {
	action, err := m.sess.Toggle(id)
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s: %s", id, action)
}

func (m labModel) View() string {
	var b strings.Builder
	metrics := m.sess.Metrics()
	offset := report.CarbonOffsetPercent(metrics.Baseline, metrics.Current)

	fmt.Fprintf(&b, "Strategy lab\n\n")
	fmt.Fprintf(&b, "  baseline %10.2f kg CO2  EUR %9.2f  grade %s\n", metrics.Baseline.TotalCo2Kg, metrics.Baseline.TotalCostEuro, metrics.Baseline.Grade)
	fmt.Fprintf(&b, "  current  %10.2f kg CO2  EUR %9.2f  grade %s  (%.1f%% offset)\n\n", metrics.Current.TotalCo2Kg, metrics.Current.TotalCostEuro, metrics.Current.Grade, offset)

	for i, ev := range m.sess.Strategies() {
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}
		fmt.Fprintf(&b, "%s %d %s %-28s %s\n", cursor, i+1, statusMark(ev.Status), ev.Title, ev.Description)
	}

	b.WriteString("\n")
	if m.naming {
		fmt.Fprintf(&b, "Save as: %s\n", m.name.View())
	} else {
		b.WriteString("enter toggle  s save  q quit\n")
	}
	if m.status != "" {
		fmt.Fprintf(&b, "%s\n", m.status)
	}
	return b.String()
}

func statusMark(s strategy.Status) string {
	switch s {
	case strategy.StatusApplied:
		return "[x]"
	case strategy.StatusBaselineOptimal:
		return "[=]"
	default:
		return "[ ]"
	}
}
