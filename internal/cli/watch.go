package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"vidscribe/internal/model"
	"vidscribe/internal/store"
)

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	watchRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	watchDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchFailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	watchCancelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	watchErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

type watchTickMsg time.Time

type watchTasksMsg struct {
	tasks []model.Task
	err   error
}

type watchModel struct {
	st    store.Store
	spin  spinner.Model
	tasks []model.Task
	err   error
	width int
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live task dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sp := spinner.New()
			sp.Spinner = spinner.Dot
			sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

			p := tea.NewProgram(watchModel{st: st, spin: sp}, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, loadTasksCmd(m.st))
}

func loadTasksCmd(st store.Store) tea.Cmd {
	return func() tea.Msg {
		tasks, err := st.ListTasks()
		return watchTasksMsg{tasks: tasks, err: err}
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case watchTasksMsg:
		m.tasks = msg.tasks
		m.err = msg.err
		return m, watchTick()
	case watchTickMsg:
		return m, loadTasksCmd(m.st)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	running := 0
	for _, t := range m.tasks {
		if t.Status == model.TaskRunning {
			running++
		}
	}
	b.WriteString(watchTitleStyle.Render("vidscribe") + " " + m.spin.View() +
		watchMutedStyle.Render(fmt.Sprintf(" %d task(s), %d running", len(m.tasks), running)) + "\n\n")

	if m.err != nil {
		b.WriteString(watchErrorStyle.Render("store error: "+m.err.Error()) + "\n")
		return b.String()
	}
	if len(m.tasks) == 0 {
		b.WriteString(watchMutedStyle.Render("No tasks yet. Queue one with 'vidscribe submit <url>'.") + "\n")
		return b.String()
	}

	b.WriteString(watchHeaderStyle.Render(
		fmt.Sprintf("%-36s %-10s %-12s %9s %8s  %s", "TASK", "STATUS", "STAGE", "OK/FAIL", "PROGRESS", "ETA")) + "\n")
	for _, t := range m.tasks {
		b.WriteString(renderTaskRow(t) + "\n")
	}

	b.WriteString("\n" + watchMutedStyle.Render("q to quit") + "\n")
	return b.String()
}

func renderTaskRow(t model.Task) string {
	stage := t.CurrentStage
	if stage == "" {
		stage = "-"
	}
	eta := "-"
	if t.Status == model.TaskRunning && t.EstimatedRemaining > 0 {
		eta = "~" + (time.Duration(t.EstimatedRemaining) * time.Second).String()
	}
	progress := fmt.Sprintf("%d%%", t.Progress)
	if t.Status == model.TaskPending {
		progress = "-"
	}
	row := fmt.Sprintf("%-36s %-10s %-12s %4d/%-4d %8s  %s",
		t.ID, t.Status, stage, t.Succeeded, t.Failed, progress, eta)

	switch t.Status {
	case model.TaskRunning:
		return watchRunningStyle.Render(row)
	case model.TaskCompleted:
		return watchDoneStyle.Render(row)
	case model.TaskFailed:
		return watchFailStyle.Render(row)
	case model.TaskCancelled:
		return watchCancelStyle.Render(row)
	default:
		return row
	}
}
