// Package tui renders the cat gallery in the terminal with Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/Sternrassler/cat-gallery/pkg/gallery"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// placeholderDescription fills the description column; the API has none.
const placeholderDescription = "Quis Lorem ea velit mollit Lorem aute quis nisi quis velit."

// maxDots is the page count above which the pager switches to "n/m".
const maxDots = 20

// Gallery is the controller surface the UI drives. *gallery.Controller implements it.
type Gallery interface {
	Start()
	NextPage() error
	PrevPage() error
	Refresh(ctx context.Context) gallery.Result
	SelectIndex(i int) error
	CloseDetail()
	Snapshot() gallery.Snapshot
	Subscribe() (<-chan struct{}, func())
}

// updateMsg signals that the gallery state changed.
type updateMsg struct{}

// refreshMsg carries the result of a manual refresh.
type refreshMsg struct {
	res gallery.Result
}

// Model is the Bubble Tea model of the gallery screen.
type Model struct {
	gallery     Gallery
	updates     <-chan struct{}
	unsubscribe func()
	logger      zerolog.Logger

	snap    gallery.Snapshot
	table   table.Model
	pager   paginator.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	width, height int
	actionErr     error
}

// New creates the model and subscribes to g. The subscription ends when the
// user quits.
func New(g Gallery, logger zerolog.Logger) Model {
	updates, unsubscribe := g.Subscribe()

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("8")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Bold(true).Reverse(true)
	t.SetStyles(styles)

	pager := paginator.New()
	pager.Type = paginator.Dots
	pager.ActiveDot = accentStyle.Render("•")
	pager.InactiveDot = mutedStyle.Render("•")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	m := Model{
		gallery:     g,
		updates:     updates,
		unsubscribe: unsubscribe,
		logger:      logger.With().Str("component", "tui").Logger(),
		table:       t,
		pager:       pager,
		spinner:     sp,
		help:        help.New(),
		keys:        defaultKeyMap(),
		width:       80,
		height:      24,
	}
	m.sync()
	return m
}

// Run starts the gallery and blocks until the user quits.
func Run(g Gallery, logger zerolog.Logger) error {
	m := New(g, logger)
	defer m.unsubscribe()

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	g := m.gallery
	return tea.Batch(
		m.spinner.Tick,
		waitForUpdate(m.updates),
		func() tea.Msg {
			g.Start()
			return nil
		},
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case updateMsg:
		m.sync()
		return m, waitForUpdate(m.updates)

	case refreshMsg:
		if msg.res.Err != nil {
			m.logger.Debug().Err(msg.res.Err).Msg("Refresh failed")
		}
		m.sync()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.unsubscribe()
		return m, tea.Quit
	}

	// The detail view is modal.
	if m.snap.HasSelection {
		if key.Matches(msg, m.keys.Close) || key.Matches(msg, m.keys.Select) {
			m.gallery.CloseDetail()
			m.sync()
		}
		return m, nil
	}

	m.actionErr = nil
	switch {
	case key.Matches(msg, m.keys.Next):
		m.actionErr = m.gallery.NextPage()
		m.sync()
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.actionErr = m.gallery.PrevPage()
		m.sync()
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if m.snap.Status == gallery.StatusReady {
			m.actionErr = m.gallery.SelectIndex(m.table.Cursor())
			m.sync()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		g := m.gallery
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return refreshMsg{res: g.Refresh(ctx)}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// sync copies the gallery snapshot into the widgets.
func (m *Model) sync() {
	m.snap = m.gallery.Snapshot()

	rows := make([]table.Row, 0, len(m.snap.Cats))
	for i, cat := range m.snap.Cats {
		rows = append(rows, catRow(i, cat))
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}

	m.pager.TotalPages = max(m.snap.MaxPages, 1)
	m.pager.Page = min(m.snap.CurrentPage, m.pager.TotalPages) - 1
	if m.snap.MaxPages > maxDots {
		m.pager.Type = paginator.Arabic
	} else {
		m.pager.Type = paginator.Dots
	}
}

func (m *Model) resize() {
	m.table.SetColumns(columns(m.width))
	m.table.SetHeight(max(m.height-10, 3))
	m.help.Width = m.width
}

// View implements tea.Model.
func (m Model) View() string {
	if m.snap.HasSelection {
		return RenderDetail(m.snap.Selected, true, m.width)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Cat Gallery"))
	b.WriteString("  ")
	b.WriteString(m.pageLabel())
	b.WriteString("\n\n")
	b.WriteString(m.body())
	b.WriteString("\n\n")
	if m.snap.MaxPages > 0 {
		b.WriteString(m.pager.View())
		b.WriteString("\n")
	}
	if m.actionErr != nil {
		b.WriteString(errorStyle.Render(m.actionErr.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))

	return panelStyle.Render(b.String())
}

func (m Model) pageLabel() string {
	if m.snap.MaxPages == 0 {
		return mutedStyle.Render(fmt.Sprintf("page %d", m.snap.CurrentPage))
	}
	return mutedStyle.Render(fmt.Sprintf("page %d of %d", m.snap.CurrentPage, m.snap.MaxPages))
}

func (m Model) body() string {
	switch m.snap.Status {
	case gallery.StatusLoading:
		return m.spinner.View() + " Fetching data..."
	case gallery.StatusFailed:
		return errorStyle.Render(fmt.Sprintf("Could not load page %d (%s)", m.snap.LoadedPage, m.snap.ErrorClass())) +
			"\n" + mutedStyle.Render(errorMessage(m.snap.Err))
	case gallery.StatusEmpty:
		return mutedStyle.Render("No cats on this page")
	default:
		return m.table.View()
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func catRow(i int, cat catapi.Cat) table.Row {
	race := cat.BreedName()
	if race == "" {
		race = placeholderDescription
	}
	return table.Row{
		fmt.Sprintf("#%d - %s", i+1, cat.ID),
		cat.URL,
		race,
	}
}

func columns(width int) []table.Column {
	// Borders, padding and cell gaps.
	avail := max(width-12, 40)
	id := 18
	picture := (avail - id) / 2
	return []table.Column{
		{Title: "#", Width: id},
		{Title: "Picture", Width: picture},
		{Title: "Race", Width: avail - id - picture},
	}
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return updateMsg{}
	}
}
