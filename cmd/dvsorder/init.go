package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"dvsorder/internal/config"
)

// question is one settings prompt.
type question struct {
	Key     string
	Prompt  string
	Default string
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "overwrite an existing settings file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: dvsorder init [--force]: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	path := config.Path(root)
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	s := config.Defaults()
	answers, err := promptQuestions(initQuestions(s))
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	if err := applyAnswers(s, answers); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := s.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func initQuestions(s *config.Settings) []question {
	return []question{
		{Key: "detector", Prompt: "Detector (shuffle, sequence, auto)", Default: s.Detector},
		{Key: "generator", Prompt: "Generator (dotnet, msvc)", Default: s.Generator},
		{Key: "seeds.min", Prompt: "Lowest seed", Default: strconv.FormatInt(*s.Seeds.Min, 10)},
		{Key: "seeds.max", Prompt: "Highest seed", Default: strconv.FormatInt(*s.Seeds.Max, 10)},
		{Key: "threshold", Prompt: "Match threshold (0, 1]", Default: strconv.FormatFloat(s.Threshold, 'g', -1, 64)},
	}
}

// applyAnswers writes non-empty answers into s.
func applyAnswers(s *config.Settings, answers map[string]string) error {
	for key, raw := range answers {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		switch key {
		case "detector":
			s.Detector = v
		case "generator":
			s.Generator = v
		case "seeds.min", "seeds.max":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if key == "seeds.min" {
				s.Seeds.Min = &n
			} else {
				s.Seeds.Max = &n
			}
		case "threshold":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			s.Threshold = f
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// TUI prompt helpers
// ---------------------------------------------------------------------------

// promptModel is a bubbletea model that asks one question at a time.
type promptModel struct {
	questions []question
	idx       int
	inputs    []textinput.Model
	done      bool
}

func newPromptModel(questions []question) promptModel {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.Default
		ti.CharLimit = 64
		inputs[i] = ti
	}
	m := promptModel{
		questions: questions,
		inputs:    inputs,
	}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	q := m.questions[m.idx]
	return fmt.Sprintf("%s [%s]: %s\n", q.Prompt, q.Default, m.inputs[m.idx].View())
}

// answers returns the typed values keyed by question.Key.
func (m promptModel) answers() map[string]string {
	out := make(map[string]string, len(m.questions))
	for i, q := range m.questions {
		out[q.Key] = m.inputs[i].Value()
	}
	return out
}

// promptQuestions runs the TUI and returns answers keyed by question.Key.
func promptQuestions(questions []question) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	p := tea.NewProgram(newPromptModel(questions))
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return nil, fmt.Errorf("prompt cancelled")
	}
	return final.answers(), nil
}
