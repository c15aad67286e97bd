package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcdaddytn/patentgraph/internal/models"
	"github.com/mcdaddytn/patentgraph/internal/service"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the workflow status
type tickMsg time.Time

// statusUpdateMsg carries the refreshed workflow status
type statusUpdateMsg struct {
	status *workflow.Status
	err    error
}

// progressModel is the bubbletea model for workflow progress.
type progressModel struct {
	svc        *service.WorkflowService
	workflowID string
	status     *workflow.Status
	progress   progress.Model
	theme      Theme
	done       bool
	quitting   bool
	err        error
}

// newProgressModel creates a new progress model.
func newProgressModel(svc *service.WorkflowService, workflowID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		svc:        svc,
		workflowID: workflowID,
		progress:   prog,
		theme:      defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStatus(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStatus()

	case statusUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch workflow status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.status = msg.status

		// Check for terminal states
		switch m.status.Workflow.Status {
		case models.WorkflowComplete:
			m.done = true
			return m, tea.Quit
		case models.WorkflowError, models.WorkflowCancelled:
			m.done = true
			if m.status.Workflow.Error != nil {
				m.err = fmt.Errorf("%s", *m.status.Workflow.Error)
			} else {
				m.err = fmt.Errorf("workflow ended with status %s", m.status.Workflow.Status)
			}
			return m, tea.Quit
		}

		// Continue polling while the workflow runs
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.status == nil {
		return "Loading workflow status...\n"
	}

	total := len(m.status.Jobs)
	complete := m.status.Counts[models.JobComplete]

	var pct float64
	if total > 0 {
		pct = float64(complete) / float64(total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.status.Workflow.Status))

	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d jobs", complete, total)
	if n := m.status.Counts[models.JobError]; n > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d failed)", n))
	}
	if n := len(m.status.BlockedIDs); n > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d blocked)", n))
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop (resume later with 'workflow resume')")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nStopped watching workflow %s.\nIt keeps its progress; pick it up with 'patentgraph workflow resume'.\n",
			m.workflowID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Workflow failed: %s\n", m.err))
	}

	if m.status != nil {
		output := m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  Jobs completed: %d\n", m.status.Counts[models.JobComplete])
		output += fmt.Sprintf("  Tokens used:    %d\n", m.status.TokensUsed)
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchStatus polls the workflow status.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st, err := m.svc.Status(ctx, m.workflowID)
		return statusUpdateMsg{status: st, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunWorkflowProgress runs the interactive progress UI for a workflow.
// Returns nil on success or Ctrl+C (background), error on workflow failure.
func RunWorkflowProgress(svc *service.WorkflowService, workflowID string) error {
	model := newProgressModel(svc, workflowID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// If user quit with Ctrl+C, the workflow continues in background
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
