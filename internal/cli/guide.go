package cli

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/pipeline"
)

var guideLocal bool

var guideCmd = &cobra.Command{
	Use:   "guide <procedure-id>",
	Short: "Walk a procedure interactively",
	Long: `Walk through a procedure step by step in the terminal, driving the same
engine a speech frontend would.

Keys: n=next  r=repeat  c=complete  x=cancel  q=quit

Examples:
  fieldvoice guide pump-inspection`,
	Args: cobra.ExactArgs(1),
	RunE: runGuide,
}

func init() {
	guideCmd.Flags().BoolVar(&guideLocal, "local", false, "skip the database backend")
}

func runGuide(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, sessions, err := buildEngine(ctx, !guideLocal)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	model := newGuideModel(p, args[0])
	prog := tea.NewProgram(model)
	final, err := prog.Run()
	if err != nil {
		return fmt.Errorf("run guide: %w", err)
	}

	if m, ok := final.(guideModel); ok && m.err != nil {
		exitWithError("%v", m.err)
	}
	return nil
}

// Theme holds the color scheme for the guide display.
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

// stepPattern pulls the cursor out of a spoken step announcement.
var stepPattern = regexp.MustCompile(`Step (\d+) of (\d+)`)

// replyMsg carries the engine's reply for a spoken command.
type replyMsg struct {
	reply models.Reply
	err   error
}

// guideModel is the bubbletea model for the procedure walk.
type guideModel struct {
	pipeline  *pipeline.Pipeline
	sessionID string
	procID    string

	progress progress.Model
	theme    Theme

	text    string
	outcome models.Outcome
	step    int
	total   int
	busy    bool
	done    bool
	err     error
}

// newGuideModel creates a guide model for one procedure.
func newGuideModel(p *pipeline.Pipeline, procID string) guideModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return guideModel{
		pipeline:  p,
		sessionID: uuid.NewString(),
		procID:    procID,
		progress:  prog,
		theme:     defaultTheme,
	}
}

// Init starts the procedure.
func (m guideModel) Init() tea.Cmd {
	return tea.Batch(
		m.say(fmt.Sprintf("start the %s procedure", m.procID)),
		m.progress.Init(),
	)
}

// say runs one synthetic transcript through the engine.
func (m guideModel) say(transcript string) tea.Cmd {
	p, id := m.pipeline, m.sessionID
	return func() tea.Msg {
		reply, err := p.Handle(context.Background(), id, transcript, 1.0)
		return replyMsg{reply: reply, err: err}
	}
}

// Update handles messages and returns the updated model.
func (m guideModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "n":
			m.busy = true
			return m, m.say("next step")
		case "r":
			m.busy = true
			return m, m.say("repeat that")
		case "c":
			m.busy = true
			return m, m.say("procedure complete")
		case "x":
			m.busy = true
			return m, m.say("cancel the procedure")
		}

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}

		m.text = msg.reply.Text
		m.outcome = msg.reply.Outcome
		if loc := stepPattern.FindStringSubmatch(msg.reply.Text); loc != nil {
			m.step, _ = strconv.Atoi(loc[1])
			m.total, _ = strconv.Atoi(loc[2])
		}
		if msg.reply.Action != nil && msg.reply.Action.Type == models.ActionCompleteStep {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the guide display.
func (m guideModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m guideModel) renderContent() string {
	if m.done {
		return m.finalView()
	}
	if m.text == "" {
		return "Starting procedure...\n"
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.step) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.outcome))
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d steps", m.step, m.total)
	hint := m.theme.hintStyle().Render("n next · r repeat · c complete · x cancel · q quit")

	body := m.text
	if m.outcome == models.OutcomeError {
		body = m.theme.errorStyle().Render(body)
	}

	return fmt.Sprintf("%s %s %s\n\n%s\n\n%s\n", status, bar, counts, body, hint)
}

// finalView renders the completion message.
func (m guideModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Guide failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render(fmt.Sprintf("\n✓ %s\n", m.text))
}
