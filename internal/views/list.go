package views

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vyrodovalexey/point-admin/internal/model"
	"github.com/vyrodovalexey/point-admin/internal/slice"
)

// Sortable list columns, in the order the sort key cycles through them.
var sortFields = []string{"id", "title", "description"}

const (
	defaultSort    = "id,asc"
	maxTableHeight = 20
)

// listView shows a page of points.
type listView struct {
	env   *env
	page  model.PageRequest
	query url.Values

	table     table.Model
	spinner   spinner.Model
	paginator paginator.Model
	ticking   bool
}

func newListView(e *env, query url.Values) *listView {
	page := parseListQuery(query, e.pageSize)

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 8},
			{Title: "Title", Width: 32},
			{Title: "Description", Width: 48},
		}),
		table.WithFocused(true),
		table.WithHeight(min(page.Size, maxTableHeight)),
	)

	p := paginator.New()
	p.Type = paginator.Arabic
	p.PerPage = page.Size
	p.Page = page.Page

	return &listView{
		env:       e,
		page:      page,
		query:     listQuery(page),
		table:     t,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		paginator: p,
	}
}

// parseListQuery reads page, size and sort from the list URL query.
// Missing or invalid values fall back to the first page sorted by id.
func parseListQuery(query url.Values, pageSize int) model.PageRequest {
	page := model.PageRequest{Size: pageSize, Sort: []string{defaultSort}}

	if n, err := strconv.Atoi(query.Get("page")); err == nil && n >= 0 && n <= model.MaxPage {
		page.Page = n
	}
	if n, err := strconv.Atoi(query.Get("size")); err == nil && n > 0 && n <= model.MaxPageSize {
		page.Size = n
	}
	var sort []string
	for _, s := range query["sort"] {
		if strings.TrimSpace(s) != "" {
			sort = append(sort, s)
		}
	}
	if len(sort) > 0 {
		page.Sort = sort
	}

	return page
}

func listQuery(page model.PageRequest) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page.Page))
	q.Set("size", strconv.Itoa(page.Size))
	for _, s := range page.Sort {
		q.Add("sort", s)
	}
	return q
}

func (l *listView) mount() tea.Cmd {
	l.ticking = true
	page := l.page
	return tea.Batch(
		l.env.run(slice.OpList, func(ctx context.Context) { l.env.store.List(ctx, page) }),
		l.spinner.Tick,
	)
}

func (l *listView) update(msg tea.Msg, st slice.State) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !st.Loading {
			l.ticking = false
			return nil
		}
		var cmd tea.Cmd
		l.spinner, cmd = l.spinner.Update(msg)
		return cmd

	case storeChangedMsg, settledMsg:
		l.sync(st)
		if st.Loading && !l.ticking {
			l.ticking = true
			return l.spinner.Tick
		}
		return nil

	case tea.KeyMsg:
		return l.key(msg, st)
	}

	return nil
}

func (l *listView) key(msg tea.KeyMsg, st slice.State) tea.Cmd {
	router := l.env.router

	switch msg.String() {
	case "q":
		return requestQuit
	case "n", "c":
		return Navigate(router.Path(RouteNew, 0, nil))
	case "r":
		page := l.page
		return l.env.run(slice.OpList, func(ctx context.Context) { l.env.store.List(ctx, page) })
	case "s":
		return l.withPage(func(p *model.PageRequest) { p.Sort = []string{nextSortField(p.Sort)} })
	case "o":
		return l.withPage(func(p *model.PageRequest) { p.Sort = []string{flipSort(p.Sort)} })
	case "left", "h", "pgup":
		if l.page.Page == 0 {
			return nil
		}
		return l.withPage(func(p *model.PageRequest) { p.Page-- })
	case "right", "l", "pgdown":
		if l.page.Page+1 >= totalPages(st.TotalItems, l.page.Size) {
			return nil
		}
		return l.withPage(func(p *model.PageRequest) { p.Page++ })
	case "enter", "v":
		if id, ok := l.selectedID(); ok {
			return Navigate(router.Path(RouteDetail, id, nil))
		}
		return nil
	case "e":
		if id, ok := l.selectedID(); ok {
			return Navigate(router.Path(RouteEdit, id, nil))
		}
		return nil
	case "d", "delete":
		if id, ok := l.selectedID(); ok {
			return Navigate(router.Path(RouteDelete, id, l.query))
		}
		return nil
	}

	var cmd tea.Cmd
	l.table, cmd = l.table.Update(msg)
	return cmd
}

// withPage navigates to the list URL for a modified copy of the page.
func (l *listView) withPage(change func(p *model.PageRequest)) tea.Cmd {
	page := l.page
	page.Sort = append([]string(nil), l.page.Sort...)
	change(&page)
	return Navigate(l.env.router.Path(RouteList, 0, listQuery(page)))
}

func (l *listView) sync(st slice.State) {
	rows := make([]table.Row, 0, len(st.Entities))
	for _, p := range st.Entities {
		rows = append(rows, table.Row{
			strconv.FormatInt(p.IDValue(), 10),
			p.Title,
			p.DescriptionValue(),
		})
	}
	l.table.SetRows(rows)
	l.paginator.SetTotalPages(st.TotalItems)
	l.paginator.Page = l.page.Page
}

func (l *listView) selectedID() (int64, bool) {
	row := l.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := model.ParseID(row[0])
	if err != nil {
		return 0, false
	}
	return id, true
}

func (l *listView) render(st slice.State) string {
	if st.Loading {
		return l.spinner.View() + " Loading points…"
	}
	if len(st.Entities) == 0 {
		return mutedStyle.Render("No Points found")
	}

	var b strings.Builder
	b.WriteString(panelStyle.Render(l.table.View()))
	b.WriteString("\n")

	first := l.page.Page*l.page.Size + 1
	last := first + len(st.Entities) - 1
	fmt.Fprintf(&b, "%s  %s  %s",
		l.paginator.View(),
		mutedStyle.Render(fmt.Sprintf("Showing %d - %d of %d items", first, last, st.TotalItems)),
		accentStyle.Render("sort "+strings.Join(l.page.Sort, " ")),
	)
	return b.String()
}

func (l *listView) help() string {
	return "↑/↓ select • enter view • e edit • d delete • n new • ←/→ page • s sort field • o order • r refresh • q quit"
}

func totalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// nextSortField cycles the primary sort property, keeping its direction.
func nextSortField(sort []string) string {
	prop, dir := splitSort(sort)
	next := sortFields[0]
	for i, f := range sortFields {
		if f == prop {
			next = sortFields[(i+1)%len(sortFields)]
			break
		}
	}
	return next + "," + dir
}

// flipSort reverses the direction of the primary sort.
func flipSort(sort []string) string {
	prop, dir := splitSort(sort)
	if dir == "asc" {
		return prop + ",desc"
	}
	return prop + ",asc"
}

func splitSort(sort []string) (prop, dir string) {
	if len(sort) == 0 {
		return "id", "asc"
	}
	prop, dir, _ = strings.Cut(sort[0], ",")
	if prop == "" {
		prop = "id"
	}
	if !strings.EqualFold(dir, "desc") {
		dir = "asc"
	} else {
		dir = "desc"
	}
	return prop, dir
}
