package views

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vyrodovalexey/point-admin/internal/model"
	"github.com/vyrodovalexey/point-admin/internal/slice"
)

const (
	fieldTitle = iota
	fieldDescription
	fieldCount
)

// formView creates a point, or edits one when id is non-zero.
type formView struct {
	env    *env
	id     int64
	inputs []textinput.Model
	focus  int

	// loaded is the entity the inputs were populated from when editing.
	loaded    model.Point
	populated bool

	watch  successWatch
	errMsg string
}

func newFormView(e *env, id int64) *formView {
	inputs := make([]textinput.Model, fieldCount)

	title := textinput.New()
	title.Prompt = "Title       > "
	title.Placeholder = "required"
	title.CharLimit = model.MaxTitleLength
	title.Cursor.SetMode(cursor.CursorStatic)
	inputs[fieldTitle] = title

	desc := textinput.New()
	desc.Prompt = "Description > "
	desc.Placeholder = "optional"
	desc.CharLimit = model.MaxDescriptionLength
	desc.Cursor.SetMode(cursor.CursorStatic)
	inputs[fieldDescription] = desc

	f := &formView{env: e, id: id, inputs: inputs}
	f.inputs[fieldTitle].Focus()
	return f
}

func (f *formView) editing() bool {
	return f.id != 0
}

func (f *formView) mount() tea.Cmd {
	if !f.editing() {
		f.populate(model.DefaultPoint())
		return nil
	}
	id := f.id
	return f.env.run(slice.OpGetOne, func(ctx context.Context) { f.env.store.GetOne(ctx, id) })
}

func (f *formView) populate(p model.Point) {
	f.loaded = p
	f.populated = true
	f.inputs[fieldTitle].SetValue(p.Title)
	f.inputs[fieldDescription].SetValue(p.DescriptionValue())
}

func (f *formView) update(msg tea.Msg, st slice.State) tea.Cmd {
	switch msg := msg.(type) {
	case storeChangedMsg, settledMsg:
		if f.editing() && !f.populated && st.Entity.IDValue() == f.id {
			f.populate(st.Entity)
		}
		if f.watch.observe(st) {
			f.watch.disarm()
			return Navigate(ListPath)
		}
		if settled, ok := msg.(settledMsg); ok {
			if done, saved := f.watch.settle(settled); done {
				if saved {
					return Navigate(ListPath)
				}
				return nil
			}
		}
		if f.watch.failed(st) {
			f.watch.disarm()
		}
		return nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc:
			return Navigate(ListPath)
		case tea.KeyTab, tea.KeyDown:
			f.setFocus((f.focus + 1) % fieldCount)
			return nil
		case tea.KeyShiftTab, tea.KeyUp:
			f.setFocus((f.focus + fieldCount - 1) % fieldCount)
			return nil
		case tea.KeyEnter:
			if f.focus < fieldCount-1 {
				f.setFocus(f.focus + 1)
				return nil
			}
			return f.submit(st)
		case tea.KeyCtrlS:
			return f.submit(st)
		case tea.KeyCtrlP:
			return f.submitPatch(st)
		}
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *formView) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = i
	f.inputs[f.focus].Focus()
}

// entity builds the point described by the inputs.
func (f *formView) entity() model.Point {
	p := model.Point{
		Title:       strings.TrimSpace(f.inputs[fieldTitle].Value()),
		Description: model.StringPtr(strings.TrimSpace(f.inputs[fieldDescription].Value())),
	}
	if f.editing() {
		p.ID = model.Int64Ptr(f.id)
	}
	return p
}

func (f *formView) submit(st slice.State) tea.Cmd {
	if st.Updating || f.watch.armed() {
		return nil
	}
	if f.editing() && !f.populated {
		return nil
	}

	p := f.entity()
	check := model.Clean(p)
	if err := check.Validate(); err != nil {
		f.errMsg = err.Error()
		return nil
	}
	f.errMsg = ""

	if f.editing() {
		f.watch.arm(f.env.store.State(), slice.OpUpdate)
		return f.env.runWrite(slice.OpUpdate, func(ctx context.Context) error { return f.env.store.Update(ctx, p) })
	}
	f.watch.arm(f.env.store.State(), slice.OpCreate)
	return f.env.runWrite(slice.OpCreate, func(ctx context.Context) error { return f.env.store.Create(ctx, p) })
}

// submitPatch sends only the fields changed since the point was loaded.
func (f *formView) submitPatch(st slice.State) tea.Cmd {
	if !f.editing() {
		return f.submit(st)
	}
	if st.Updating || f.watch.armed() || !f.populated {
		return nil
	}

	current := f.entity()
	patch := model.Point{ID: model.Int64Ptr(f.id)}
	if current.Title != f.loaded.Title {
		patch.Title = current.Title
	}
	if current.DescriptionValue() != f.loaded.DescriptionValue() {
		patch.Description = current.Description
	}

	patch = model.Clean(patch)
	if err := patch.ValidatePatch(); err != nil {
		f.errMsg = err.Error()
		return nil
	}
	f.errMsg = ""

	f.watch.arm(f.env.store.State(), slice.OpPartialUpdate)
	return f.env.runWrite(slice.OpPartialUpdate, func(ctx context.Context) error {
		return f.env.store.PartialUpdate(ctx, patch)
	})
}

func (f *formView) render(st slice.State) string {
	var b strings.Builder

	heading := "Create a new Point"
	if f.editing() {
		heading = "Edit Point " + strconv.FormatInt(f.id, 10)
	}
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n\n")

	if f.editing() && !f.populated {
		if st.Loading {
			b.WriteString(mutedStyle.Render("Loading…"))
		} else {
			b.WriteString(mutedStyle.Render("Point is not available"))
		}
		return panelStyle.Render(b.String())
	}

	for i := range f.inputs {
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	if f.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(f.errMsg))
	}
	if st.Updating && f.watch.armed() {
		b.WriteString("\n")
		b.WriteString(successStyle.Render("Saving…"))
	}
	return panelStyle.Render(b.String())
}

func (f *formView) help() string {
	if f.editing() {
		return "tab next field • enter/ctrl+s save • ctrl+p save changed fields • esc cancel"
	}
	return "tab next field • enter/ctrl+s save • esc cancel"
}
