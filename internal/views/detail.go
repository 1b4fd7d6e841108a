package views

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vyrodovalexey/point-admin/internal/slice"
)

// detailView shows one point read-only.
type detailView struct {
	env *env
	id  int64
}

func newDetailView(e *env, id int64) *detailView {
	return &detailView{env: e, id: id}
}

func (d *detailView) mount() tea.Cmd {
	id := d.id
	return d.env.run(slice.OpGetOne, func(ctx context.Context) { d.env.store.GetOne(ctx, id) })
}

func (d *detailView) update(msg tea.Msg, _ slice.State) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	router := d.env.router
	switch key.String() {
	case "esc", "b", "backspace":
		return Navigate(ListPath)
	case "e":
		return Navigate(router.Path(RouteEdit, d.id, nil))
	case "d":
		return Navigate(router.Path(RouteDelete, d.id, nil))
	case "q":
		return requestQuit
	}
	return nil
}

func (d *detailView) render(st slice.State) string {
	if st.Entity.IDValue() != d.id {
		if st.Loading {
			return mutedStyle.Render("Loading point " + strconv.FormatInt(d.id, 10) + "…")
		}
		return mutedStyle.Render("Point " + strconv.FormatInt(d.id, 10) + " is not available")
	}

	p := st.Entity
	var b strings.Builder
	b.WriteString(titleStyle.Render("Point"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("ID") + strconv.FormatInt(p.IDValue(), 10) + "\n")
	b.WriteString(labelStyle.Render("Title") + p.Title + "\n")
	b.WriteString(labelStyle.Render("Description") + p.DescriptionValue())
	return panelStyle.Render(b.String())
}

func (d *detailView) help() string {
	return "esc back • e edit • d delete • q quit"
}
