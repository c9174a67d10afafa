package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

type progressMsg struct {
	done, total int
}

// labelMsg starts a new input file.
type labelMsg string

// progressModel renders a bar for the batches of the export being analyzed.
type progressModel struct {
	bar         progress.Model
	label       string
	done, total int
	cancel      func()
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(msg.Width-len(m.label)-16, 10)
	case labelMsg:
		m.label, m.done, m.total = string(msg), 0, 0
	case progressMsg:
		m.done, m.total = msg.done, msg.total
	}
	return m, nil
}

func (m progressModel) View() string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	return fmt.Sprintf("%s %s %d/%d\n", m.label, m.bar.ViewAs(pct), m.done, m.total)
}

// progressBar drives a progressModel from analysis callbacks.
type progressBar struct {
	program *tea.Program
	errc    chan error
}

// startProgress renders on stderr until stop is called. cancel is invoked
// when the user interrupts.
func startProgress(cancel func()) *progressBar {
	m := progressModel{bar: progress.New(progress.WithDefaultGradient()), cancel: cancel}
	pb := &progressBar{
		program: tea.NewProgram(m, tea.WithOutput(os.Stderr)),
		errc:    make(chan error, 1),
	}
	go func() {
		_, err := pb.program.Run()
		pb.errc <- err
	}()
	return pb
}

// file switches the label to a new input file.
func (pb *progressBar) file(path string) {
	pb.program.Send(labelMsg(filepath.Base(path)))
}

// update is a run.Progress callback.
func (pb *progressBar) update(done, total int) {
	pb.program.Send(progressMsg{done: done, total: total})
}

func (pb *progressBar) stop() error {
	pb.program.Quit()
	return <-pb.errc
}

