package views

import (
	"context"
	"fmt"
	"net/url"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vyrodovalexey/point-admin/internal/slice"
)

// deleteDialog asks for confirmation before deleting a point. On success
// it returns to the list page it was opened from.
type deleteDialog struct {
	env       *env
	id        int64
	query     url.Values
	confirmed bool
	watch     successWatch
}

func newDeleteDialog(e *env, id int64, query url.Values) *deleteDialog {
	return &deleteDialog{env: e, id: id, query: query}
}

func (d *deleteDialog) mount() tea.Cmd {
	d.watch.arm(d.env.store.State(), slice.OpDelete)
	id := d.id
	return d.env.run(slice.OpGetOne, func(ctx context.Context) { d.env.store.GetOne(ctx, id) })
}

func (d *deleteDialog) update(msg tea.Msg, st slice.State) tea.Cmd {
	switch msg := msg.(type) {
	case storeChangedMsg, settledMsg:
		if !d.confirmed {
			return nil
		}
		if d.watch.observe(st) {
			d.watch.disarm()
			return Navigate(d.back())
		}
		if settled, ok := msg.(settledMsg); ok {
			if done, deleted := d.watch.settle(settled); done {
				if deleted {
					return Navigate(d.back())
				}
				d.retry()
				return nil
			}
		}
		if d.watch.failed(st) {
			d.retry()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "n", "q":
			d.watch.disarm()
			return Navigate(d.back())
		case "enter", "y":
			if d.confirmed || st.Updating {
				return nil
			}
			d.confirmed = true
			id := d.id
			return d.env.runWrite(slice.OpDelete, func(ctx context.Context) error { return d.env.store.Delete(ctx, id) })
		}
	}
	return nil
}

// retry lets the user confirm again after a failed delete.
func (d *deleteDialog) retry() {
	d.confirmed = false
	d.watch.arm(d.env.store.State(), slice.OpDelete)
}

func (d *deleteDialog) back() string {
	return d.env.router.Path(RouteList, 0, d.query)
}

func (d *deleteDialog) render(st slice.State) string {
	name := fmt.Sprintf("Point %d", d.id)
	if st.Entity.IDValue() == d.id && st.Entity.Title != "" {
		name = fmt.Sprintf("Point %d (%s)", d.id, st.Entity.Title)
	}

	body := titleStyle.Render("Confirm delete operation") + "\n\n" +
		fmt.Sprintf("Are you sure you want to delete %s?", name)
	if d.confirmed && st.Updating {
		body += "\n\n" + mutedStyle.Render("Deleting…")
	}
	return dialogStyle.Render(body)
}

func (d *deleteDialog) help() string {
	return "enter/y delete • esc/n cancel"
}
