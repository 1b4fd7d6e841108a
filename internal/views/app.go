// Package views implements the terminal admin screens for points: the list,
// detail, form and delete dialog, and the router switching between them.
package views

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/point-admin/internal/model"
	"github.com/vyrodovalexey/point-admin/internal/slice"
)

// NavigateMsg switches the App to Path.
type NavigateMsg struct {
	Path string
}

// Navigate returns a command that navigates to path.
func Navigate(path string) tea.Cmd {
	return func() tea.Msg {
		return NavigateMsg{Path: path}
	}
}

// storeChangedMsg is delivered when the store signals a state change.
type storeChangedMsg struct{}

// settledMsg is delivered when an operation started by a view has settled.
// err is set for a failed write.
type settledMsg struct {
	op  slice.Op
	err error
}

// quitMsg asks the App to end the program.
type quitMsg struct{}

func requestQuit() tea.Msg {
	return quitMsg{}
}

// view is one screen of the App. Views receive the latest store state with
// every message.
type view interface {
	mount() tea.Cmd
	update(msg tea.Msg, st slice.State) tea.Cmd
	render(st slice.State) string
	help() string
}

// env is shared by all views.
type env struct {
	ctx      context.Context
	store    *slice.Store
	router   *Router
	pageSize int
}

// run wraps a blocking store operation in a command reporting settlement.
func (e *env) run(op slice.Op, fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		fn(e.ctx)
		return settledMsg{op: op}
	}
}

// runWrite is run for writes, whose error is carried by the settledMsg.
func (e *env) runWrite(op slice.Op, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return settledMsg{op: op, err: fn(e.ctx)}
	}
}

// Options configures an App.
type Options struct {
	// Context bounds store operations started by views.
	Context context.Context
	Store   *slice.Store
	Logger  *zap.Logger
	// Path is the initial route. Defaults to the list.
	Path     string
	PageSize int
}

// App is the root tea.Model. It owns the store handle and the current view.
type App struct {
	env    *env
	logger *zap.Logger

	changes     <-chan struct{}
	unsubscribe func()

	route    Route
	path     string
	view     view
	underlay view
	state    slice.State

	width  int
	height int
}

// NewApp creates an App positioned on opts.Path.
func NewApp(opts Options) *App {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	path := opts.Path
	if path == "" {
		path = ListPath
	}

	a := &App{
		env: &env{
			ctx:      ctx,
			store:    opts.Store,
			router:   NewRouter(),
			pageSize: pageSize,
		},
		logger: logger,
		state:  opts.Store.State(),
	}
	a.changes, a.unsubscribe = opts.Store.Subscribe()
	a.open(path)

	return a
}

// Route returns the current route.
func (a *App) Route() Route {
	return a.route
}

// Path returns the current path.
func (a *App) Path() string {
	return a.path
}

// Init starts listening for store changes and mounts the initial view.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.listen(), a.view.mount())
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, a.quit()
		}

	case quitMsg:
		return a, a.quit()

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height

	case NavigateMsg:
		a.open(msg.Path)
		return a, a.view.mount()

	case storeChangedMsg:
		a.state = a.env.store.State()
		return a, tea.Batch(a.view.update(msg, a.state), a.listen())

	case settledMsg:
		a.state = a.env.store.State()
	}

	return a, a.view.update(msg, a.state)
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Points"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(a.path))
	b.WriteString("\n\n")

	if a.underlay != nil {
		b.WriteString(a.underlay.render(a.state))
		b.WriteString("\n")
	}
	b.WriteString(a.view.render(a.state))
	b.WriteString("\n\n")

	b.WriteString(a.statusLine())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(a.view.help() + " • ctrl+c quit"))

	return b.String()
}

// statusLine shows the last failure recorded in the store.
func (a *App) statusLine() string {
	if a.state.ErrorMessage != "" {
		return errorStyle.Render("✖ " + a.state.ErrorMessage)
	}
	if a.state.Loading || a.state.Updating {
		return mutedStyle.Render("working…")
	}
	return ""
}

// open replaces the current view with the one for path. The delete dialog
// is drawn over the list it was opened from.
func (a *App) open(path string) {
	route := a.env.router.Match(path)
	a.logger.Debug("navigate", zap.String("path", path), zap.String("route", route.Name))

	var underlay view
	if route.Name == RouteDelete {
		if list, ok := a.view.(*listView); ok {
			underlay = list
		}
	}

	a.route = route
	a.path = a.env.router.Path(route.Name, route.ID, route.Query)
	a.underlay = underlay

	switch route.Name {
	case RouteNew:
		a.view = newFormView(a.env, 0)
	case RouteEdit:
		a.view = newFormView(a.env, route.ID)
	case RouteDetail:
		a.view = newDetailView(a.env, route.ID)
	case RouteDelete:
		a.view = newDeleteDialog(a.env, route.ID, route.Query)
	default:
		a.view = newListView(a.env, route.Query)
	}
}

func (a *App) listen() tea.Cmd {
	changes := a.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func (a *App) quit() tea.Cmd {
	a.unsubscribe()
	return tea.Quit
}
