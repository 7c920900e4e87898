// Package tui is the interactive terminal front end for the watchlist.
//
// It drives a *registry.Registry directly and follows the bubbletea model:
// key presses and registry events arrive as messages, Update mutates the
// Model, and View renders it.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/jobwatch/internal/export"
	"github.com/kalambet/jobwatch/internal/registry"
	"github.com/kalambet/jobwatch/internal/sites"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeRename
	modeConfirmDelete
	modeResult
)

const (
	fieldName = iota
	fieldURL
	fieldKeywords
)

// Options customizes a Model.
type Options struct {
	// ExportDir receives exported HTML reports. Defaults to the working directory.
	ExportDir string
	// OpenURL opens a link in the user's browser.
	OpenURL func(url string) error
}

type eventMsg registry.Event

type scanDoneMsg struct {
	id   string
	name string
	err  error
}

type bulkDoneMsg struct {
	summary registry.Summary
	err     error
}

type exportDoneMsg struct {
	path string
	err  error
}

// Model is the bubbletea model for the watchlist screen.
type Model struct {
	ctx  context.Context
	reg  *registry.Registry
	opts Options

	events      <-chan registry.Event
	unsubscribe func()

	entries []sites.Entry
	cursor  int
	mode    mode

	inputs   []textinput.Model
	focus    int
	renaming string // id of the entry being renamed or deleted

	viewport viewport.Model
	help     help.Model
	keys     keyMap

	flash    string
	flashErr bool

	width  int
	height int
}

// New returns a Model bound to reg. Call Close when done with it.
func New(ctx context.Context, reg *registry.Registry, opts Options) *Model {
	if opts.OpenURL == nil {
		opts.OpenURL = openBrowser
	}
	events, unsubscribe := reg.Subscribe()
	m := &Model{
		ctx:         ctx,
		reg:         reg,
		opts:        opts,
		events:      events,
		unsubscribe: unsubscribe,
		viewport:    viewport.New(80, 20),
		help:        help.New(),
		keys:        defaultKeys(),
		width:       80,
		height:      24,
	}
	m.refresh()
	return m
}

// Close ends the registry subscription.
func (m *Model) Close() {
	m.unsubscribe()
}

// Run shows the watchlist in the terminal until the user quits or ctx ends.
func Run(ctx context.Context, reg *registry.Registry, opts Options) error {
	m := New(ctx, reg, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan registry.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(5, msg.Height-6)
		m.help.Width = msg.Width
		return m, nil

	case eventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case scanDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.setError("Scan of %s failed: %v", msg.name, msg.err)
			return m, nil
		}
		m.setFlash("Scanned %s", msg.name)
		// A manual scan outside a bulk run opens its result, unless the
		// user has moved on to a form or prompt.
		if m.mode == modeList && !m.reg.BulkScanning() {
			if e, ok := m.reg.Get(msg.id); ok {
				m.showResult(e)
			}
		}
		return m, nil

	case bulkDoneMsg:
		switch {
		case errors.Is(msg.err, registry.ErrBulkScanInProgress):
			m.setError("A bulk scan is already running")
		case msg.err != nil:
			m.setError("Bulk scan stopped: %v", msg.err)
		default:
			s := msg.summary
			m.setFlash("Scanned %d sites: %d ok, %d failed", s.Scanned, s.Succeeded, s.Failed)
		}
		m.refresh()
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.setError("Export failed: %v", msg.err)
		} else {
			m.setFlash("Saved %s", msg.path)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeAdd, modeRename:
			return m.updateForm(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		case modeResult:
			return m.updateResult(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.reg.BulkScanning() && m.mutating(msg) {
		m.setError("A bulk scan is running; wait for it to finish")
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		return m, m.startForm(modeAdd, sites.Entry{})
	case key.Matches(msg, m.keys.ScanAll):
		if len(m.entries) == 0 {
			m.setError("Nothing to scan")
			return m, nil
		}
		m.setFlash("Scanning all sites…")
		return m, m.scanAll()
	}

	e, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Rename):
		return m, m.startForm(modeRename, e)
	case key.Matches(msg, m.keys.Delete):
		m.mode = modeConfirmDelete
		m.renaming = e.ID
	case key.Matches(msg, m.keys.MoveLeft):
		if m.reg.Move(m.ctx, e.ID, registry.Left) {
			m.cursor--
		}
		m.refresh()
	case key.Matches(msg, m.keys.MoveRight):
		if m.reg.Move(m.ctx, e.ID, registry.Right) {
			m.cursor++
		}
		m.refresh()
	case key.Matches(msg, m.keys.Scan):
		if e.Status == sites.StatusScanning {
			return m, nil
		}
		m.setFlash("Scanning %s…", e.Name)
		return m, m.scanOne(e)
	case key.Matches(msg, m.keys.View):
		m.showResult(e)
	case key.Matches(msg, m.keys.Open):
		if err := m.opts.OpenURL(e.URL); err != nil {
			m.setError("Could not open %s: %v", e.URL, err)
		}
	case key.Matches(msg, m.keys.Export):
		return m, m.export(e)
	}
	return m, nil
}

// mutating reports whether msg would change the registry or start a second
// bulk scan. A single-site scan is allowed and waits for the bulk scan.
func (m *Model) mutating(msg tea.KeyMsg) bool {
	for _, b := range []key.Binding{m.keys.Add, m.keys.Rename, m.keys.Delete, m.keys.MoveLeft, m.keys.MoveRight, m.keys.ScanAll} {
		if key.Matches(msg, b) {
			return true
		}
	}
	return false
}

func (m *Model) startForm(md mode, e sites.Entry) tea.Cmd {
	m.mode = md
	m.focus = 0
	m.flash = ""
	if md == modeRename {
		in := newInput("Site name", 120)
		in.SetValue(e.Name)
		m.inputs = []textinput.Model{in}
		m.renaming = e.ID
	} else {
		m.inputs = []textinput.Model{
			newInput("Company name", 120),
			newInput("careers.example.com/jobs", 2048),
			newInput("go, remote, senior (optional)", 512),
		}
	}
	return m.inputs[0].Focus()
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = 50
	return in
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil
	case "tab", "down":
		return m, m.focusInput(m.focus + 1)
	case "shift+tab", "up":
		return m, m.focusInput(m.focus - 1)
	case "enter":
		if m.focus < len(m.inputs)-1 {
			return m, m.focusInput(m.focus + 1)
		}
		m.submitForm()
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) focusInput(i int) tea.Cmd {
	n := len(m.inputs)
	m.inputs[m.focus].Blur()
	m.focus = (i%n + n) % n
	return m.inputs[m.focus].Focus()
}

func (m *Model) submitForm() {
	if m.reg.BulkScanning() {
		m.setError("A bulk scan is running; wait for it to finish")
		return
	}
	switch m.mode {
	case modeAdd:
		e, err := m.reg.Add(m.ctx,
			m.inputs[fieldName].Value(),
			m.inputs[fieldURL].Value(),
			m.inputs[fieldKeywords].Value(),
		)
		if err != nil {
			m.setError("%v", err)
			return
		}
		m.closeForm()
		m.refresh()
		m.cursor = len(m.entries) - 1
		m.setFlash("Added %s", e.Name)
	case modeRename:
		name := strings.TrimSpace(m.inputs[0].Value())
		if name == "" {
			m.setError("Name must not be empty")
			return
		}
		m.reg.Rename(m.ctx, m.renaming, name)
		m.closeForm()
		m.refresh()
	}
}

func (m *Model) closeForm() {
	m.mode = modeList
	m.inputs = nil
	m.renaming = ""
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.reg.BulkScanning() {
			m.setError("A bulk scan is running; wait for it to finish")
		} else if e, ok := m.reg.Get(m.renaming); ok && m.reg.Delete(m.ctx, e.ID) {
			m.setFlash("Deleted %s", e.Name)
		}
		m.mode = modeList
		m.renaming = ""
		m.refresh()
	case "n", "N", "esc", "q":
		m.mode = modeList
		m.renaming = ""
	}
	return m, nil
}

func (m *Model) showResult(e sites.Entry) {
	res, err := m.reg.Result(e.ID)
	switch {
	case errors.Is(err, registry.ErrNoResult):
		m.setError("%s has not been scanned yet", e.Name)
		return
	case err != nil:
		m.setError("%v", err)
		return
	}
	m.viewport.SetContent(renderResult(e, res, m.viewport.Width))
	m.viewport.GotoTop()
	m.mode = modeResult
}

func (m *Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "esc", key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.View):
		m.mode = modeList
		return m, nil
	case key.Matches(msg, m.keys.Export):
		if e, ok := m.selected(); ok {
			return m, m.export(e)
		}
	case key.Matches(msg, m.keys.Open):
		if e, ok := m.selected(); ok {
			if err := m.opts.OpenURL(e.URL); err != nil {
				m.setError("Could not open %s: %v", e.URL, err)
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) scanOne(e sites.Entry) tea.Cmd {
	ctx, reg := m.ctx, m.reg
	return func() tea.Msg {
		_, err := reg.ScanOne(ctx, e.ID)
		return scanDoneMsg{id: e.ID, name: e.Name, err: err}
	}
}

func (m *Model) scanAll() tea.Cmd {
	ctx, reg := m.ctx, m.reg
	return func() tea.Msg {
		s, err := reg.ScanAll(ctx)
		return bulkDoneMsg{summary: s, err: err}
	}
}

func (m *Model) export(e sites.Entry) tea.Cmd {
	reg, dir := m.reg, m.opts.ExportDir
	return func() tea.Msg {
		res, err := reg.Result(e.ID)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		path := filepath.Join(dir, export.Filename(e))
		f, err := os.Create(path)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		if err := export.RenderHTML(f, e, res); err != nil {
			f.Close()
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{path: path, err: f.Close()}
	}
}

func (m *Model) refresh() {
	m.entries = m.reg.List()
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selected() (sites.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return sites.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m *Model) setFlash(format string, args ...any) {
	m.flash = fmt.Sprintf(format, args...)
	m.flashErr = false
}

func (m *Model) setError(format string, args ...any) {
	m.flash = fmt.Sprintf(format, args...)
	m.flashErr = true
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
