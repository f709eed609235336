package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/salmodiario/internal/jobs"
	"github.com/salmodiario/pkg/config"
)

type Step int

const (
	stepPrompt Step = iota
	stepDate
	stepMode
	stepConfirm
	stepRunning
	stepDone
)

const dateLayout = "2006-01-02"

type jobStartedMsg struct {
	events <-chan jobs.Event
	done   <-chan jobFinishedMsg
}

type jobFinishedMsg struct {
	result jobs.Result
	err    error
}

type jobProgressMsg jobs.Event

type Model struct {
	config config.Config
	runner *jobs.Runner

	step      Step
	modeIdx   int
	prompt    string
	date      time.Time
	status    string
	err       error
	result    *jobs.Result
	jobEvents []jobs.Event

	promptInput textarea.Model
	dateInput   textinput.Model

	progress progress.Model
	spinner  spinner.Model

	eventChan <-chan jobs.Event
	doneChan  <-chan jobFinishedMsg
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("178"))
	highlight    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	subtle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	quitHint     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func NewModel(cfg config.Config, runner *jobs.Runner, date time.Time, dryRun bool) Model {
	promptInput := textarea.New()
	promptInput.Placeholder = "Describe the background image"
	promptInput.ShowLineNumbers = false
	promptInput.CharLimit = 0
	promptInput.SetWidth(72)
	promptInput.SetHeight(6)
	promptInput.SetValue(cfg.ImagePrompt)
	promptInput.Focus()

	if date.IsZero() {
		date = time.Now().In(cfg.Location())
	}
	dateInput := textinput.New()
	dateInput.Placeholder = dateLayout
	dateInput.SetValue(date.Format(dateLayout))

	modeIdx := 0
	if dryRun {
		modeIdx = 1
	}

	spinnerModel := spinner.New()
	spinnerModel.Spinner = spinner.Dot

	return Model{
		config:      cfg,
		runner:      runner,
		step:        stepPrompt,
		modeIdx:     modeIdx,
		date:        date,
		promptInput: promptInput,
		dateInput:   dateInput,
		progress:    progress.New(progress.WithDefaultGradient()),
		spinner:     spinnerModel,
	}
}

func (model Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, model.spinner.Tick)
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(msg)
		return model, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		if msg.String() == "q" && !model.editing() && !model.jobRunning() {
			return model, tea.Quit
		}
		return model.handleKey(msg)
	case jobStartedMsg:
		model.eventChan = msg.events
		model.doneChan = msg.done
		return model, tea.Batch(listenEventCmd(model.eventChan), listenDoneCmd(model.doneChan))
	case jobProgressMsg:
		model.jobEvents = append(model.jobEvents, jobs.Event(msg))
		if len(model.jobEvents) > 6 {
			model.jobEvents = model.jobEvents[len(model.jobEvents)-6:]
		}
		model.status = msg.Message
		cmd := model.progress.SetPercent(msg.Progress)
		return model, tea.Batch(cmd, listenEventCmd(model.eventChan))
	case progress.FrameMsg:
		progressModel, cmd := model.progress.Update(msg)
		model.progress = progressModel.(progress.Model)
		return model, cmd
	case jobFinishedMsg:
		model.step = stepDone
		if msg.err != nil {
			model.err = msg.err
			model.status = "Run failed"
			return model, nil
		}
		model.result = &msg.result
		model.status = "Card ready"
		return model, nil
	case tea.WindowSizeMsg:
		model.progress.Width = msg.Width - 8
		model.promptInput.SetWidth(min(msg.Width-4, 100))
		return model, nil
	}

	return model, nil
}

func (model Model) editing() bool {
	return model.step == stepPrompt || model.step == stepDate
}

func (model Model) jobRunning() bool {
	return model.step == stepRunning
}

func (model Model) View() string {
	var view string
	switch model.step {
	case stepPrompt:
		view = model.viewPrompt()
	case stepDate:
		view = model.viewDate()
	case stepMode:
		view = renderSelect("Publish mode", modeOptions(), model.modeIdx)
	case stepConfirm:
		view = model.viewConfirm()
	case stepRunning:
		view = model.viewRunning()
	case stepDone:
		view = model.viewDone()
	}
	hint := "Press q or Ctrl+C to quit"
	if model.editing() {
		hint = "Press Ctrl+C to quit"
	}
	return view + "\n\n" + quitHint.Render(hint)
}

func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch model.step {
	case stepPrompt:
		if msg.Type == tea.KeyCtrlS {
			prompt := strings.TrimSpace(model.promptInput.Value())
			if prompt == "" {
				model.err = fmt.Errorf("prompt cannot be empty")
				return model, nil
			}
			model.err = nil
			model.prompt = prompt
			model.promptInput.Blur()
			model.step = stepDate
			return model, model.dateInput.Focus()
		}
		var cmd tea.Cmd
		model.promptInput, cmd = model.promptInput.Update(msg)
		return model, cmd
	case stepDate:
		switch msg.Type {
		case tea.KeyEnter:
			parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(model.dateInput.Value()), model.config.Location())
			if err != nil {
				model.err = fmt.Errorf("date must look like %s", dateLayout)
				return model, nil
			}
			model.err = nil
			model.date = parsed
			model.dateInput.Blur()
			model.step = stepMode
			return model, nil
		case tea.KeyEsc:
			model.dateInput.Blur()
			model.step = stepPrompt
			return model, model.promptInput.Focus()
		}
		var cmd tea.Cmd
		model.dateInput, cmd = model.dateInput.Update(msg)
		return model, cmd
	case stepMode:
		switch msg.String() {
		case "up", "k":
			model.modeIdx = (model.modeIdx + len(modeOptions()) - 1) % len(modeOptions())
		case "down", "j":
			model.modeIdx = (model.modeIdx + 1) % len(modeOptions())
		case "enter":
			model.step = stepConfirm
		case "esc":
			model.step = stepDate
			return model, model.dateInput.Focus()
		}
	case stepConfirm:
		switch msg.String() {
		case "enter":
			model.step = stepRunning
			return model, model.startJobCmd()
		case "esc":
			model.step = stepMode
		}
	}

	return model, nil
}

func (model Model) dryRun() bool {
	return model.modeIdx == 1
}

func (model Model) viewPrompt() string {
	lines := []string{
		headerStyle.Render("Background prompt"),
		"",
		model.promptInput.View(),
		"",
		subtle.Render(fmt.Sprintf("Backend: %s  ·  Ctrl+S to continue", model.config.ImageBackend)),
	}
	if model.err != nil {
		lines = append(lines, warningStyle.Render(model.err.Error()))
	}
	return strings.Join(lines, "\n")
}

func (model Model) viewDate() string {
	lines := []string{
		headerStyle.Render("Card date"),
		"",
		model.dateInput.View(),
		"",
		subtle.Render("Enter to continue, Esc to edit the prompt"),
	}
	if model.err != nil {
		lines = append(lines, warningStyle.Render(model.err.Error()))
	}
	return strings.Join(lines, "\n")
}

func (model Model) viewConfirm() string {
	narration := model.config.NarrationBackend
	if narration == "" {
		narration = config.NarrationNone
	}
	return fmt.Sprintf(
		"%s\n\nDate: %s\nImage backend: %s\nNarration: %s\nPublish: %s\nPrompt: %s\n\n%s",
		headerStyle.Render("Confirm"),
		model.date.Format(dateLayout),
		model.config.ImageBackend,
		narration,
		modeOptions()[model.modeIdx],
		truncateText(model.prompt, 80),
		subtle.Render("Press Enter to start, Esc to go back"),
	)
}

func (model Model) viewRunning() string {
	lines := []string{fmt.Sprintf("%s %s", model.spinner.View(), headerStyle.Render("Building today's card")), ""}
	if model.status != "" {
		lines = append(lines, statusStyle.Render(model.status))
	}
	lines = append(lines, model.progress.View())
	if len(model.jobEvents) > 0 {
		lines = append(lines, "", subtle.Render("Recent events:"))
		for _, event := range model.jobEvents {
			lines = append(lines, fmt.Sprintf("- %s: %s", event.Stage, event.Message))
		}
	}
	return strings.Join(lines, "\n")
}

func (model Model) viewDone() string {
	if model.err != nil {
		return fmt.Sprintf("%s\n\n%s\n\n%s", headerStyle.Render("Error"), warningStyle.Render(model.err.Error()), subtle.Render("Press q to quit"))
	}
	if model.result == nil {
		return fmt.Sprintf("%s\n\n%s", headerStyle.Render("Done"), subtle.Render("Press q to quit"))
	}

	result := model.result
	lines := []string{headerStyle.Render("Done"), "", "Card: " + result.ImagePath}
	if result.ImageURL != "" {
		lines = append(lines, "URL: "+highlight.Render(result.ImageURL))
	}
	if result.AudioURL != "" {
		lines = append(lines, "Narration: "+highlight.Render(result.AudioURL))
	} else if result.AudioPath != "" {
		lines = append(lines, "Narration: "+result.AudioPath)
	}
	if result.Annotated {
		lines = append(lines, fmt.Sprintf("Body font: %dpx, %d chars per line", result.Plan.BodyFontSize, result.Plan.WrapWidthChars))
	} else {
		lines = append(lines, warningStyle.Render("Text was not drawn (font unavailable)"))
	}
	if result.MetaPath != "" {
		lines = append(lines, "Metadata: "+result.MetaPath)
	}
	lines = append(lines, "", subtle.Render("Press q to quit"))
	return strings.Join(lines, "\n")
}

func (model Model) startJobCmd() tea.Cmd {
	input := jobs.Input{
		Date:      model.date,
		Prompt:    model.prompt,
		OutputDir: model.config.OutputDir,
		DryRun:    model.dryRun(),
	}
	runner := model.runner
	return func() tea.Msg {
		events := make(chan jobs.Event)
		done := make(chan jobFinishedMsg, 1)
		ctx := context.Background()
		go func() {
			result, err := runner.Run(ctx, input, events)
			close(events)
			done <- jobFinishedMsg{result: result, err: err}
		}()
		return jobStartedMsg{events: events, done: done}
	}
}

func listenEventCmd(events <-chan jobs.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return jobProgressMsg(event)
	}
}

func listenDoneCmd(done <-chan jobFinishedMsg) tea.Cmd {
	return func() tea.Msg {
		return <-done
	}
}

func renderSelect(title string, options []string, selected int) string {
	lines := []string{headerStyle.Render(title), ""}
	for index, option := range options {
		cursor := "  "
		styled := option
		if index == selected {
			cursor = "> "
			styled = highlight.Render(option)
		}
		lines = append(lines, fmt.Sprintf("%s%s", cursor, styled))
	}
	lines = append(lines, "", subtle.Render("Use ↑/↓ and Enter"))
	return strings.Join(lines, "\n")
}

func modeOptions() []string {
	return []string{"Publish", "Dry run (save locally only)"}
}

func truncateText(value string, max int) string {
	runes := []rune(value)
	if max <= 0 {
		return ""
	}
	if len(runes) <= max {
		return value
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
