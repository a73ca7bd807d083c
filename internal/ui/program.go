package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Program wraps the running fullscreen shell and exposes its two
// windows as coordinator surfaces.
type Program struct {
	p *tea.Program
}

// NewProgram builds the shell program in the alternate screen.
func NewProgram(opts Options) *Program {
	return &Program{p: tea.NewProgram(NewModel(opts), tea.WithAltScreen())}
}

// Run blocks until the user closes the shell or Quit is called.
func (p *Program) Run() error {
	_, err := p.p.Run()
	return err
}

// Send delivers a message to the shell from any goroutine.
func (p *Program) Send(msg tea.Msg) {
	p.p.Send(msg)
}

// Quit asks the shell to exit.
func (p *Program) Quit() {
	p.p.Quit()
}

// Splash returns the splash window surface.
func (p *Program) Splash() Surface { return splashSurface{p} }

// Main returns the main window surface.
func (p *Program) Main() Surface { return mainSurface{p} }

type splashSurface struct{ p *Program }

func (s splashSurface) Close() { s.p.Send(splashCloseMsg{}) }
func (s splashSurface) Show()  {}
func (s splashSurface) Focus() {}

type mainSurface struct{ p *Program }

func (s mainSurface) Close() {}
func (s mainSurface) Show()  { s.p.Send(mainShowMsg{}) }
func (s mainSurface) Focus() { s.p.Send(mainFocusMsg{}) }
