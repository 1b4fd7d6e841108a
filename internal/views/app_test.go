package views

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vyrodovalexey/point-admin/internal/client"
	"github.com/vyrodovalexey/point-admin/internal/config"
	"github.com/vyrodovalexey/point-admin/internal/model"
	"github.com/vyrodovalexey/point-admin/internal/server"
	"github.com/vyrodovalexey/point-admin/internal/slice"
	"github.com/vyrodovalexey/point-admin/internal/store"
)

// apiCall is one recorded call made by the slice store.
type apiCall struct {
	name string
	page model.PageRequest
	id   int64
	body model.Point
}

// recordingAPI records calls before delegating to the real client.
type recordingAPI struct {
	slice.API

	mu    sync.Mutex
	calls []apiCall
}

func (r *recordingAPI) record(c apiCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingAPI) recorded() []apiCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]apiCall(nil), r.calls...)
}

func (r *recordingAPI) named(name string) []apiCall {
	var out []apiCall
	for _, c := range r.recorded() {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingAPI) ListPoints(ctx context.Context, page model.PageRequest) ([]model.Point, int, error) {
	r.record(apiCall{name: "list", page: page})
	return r.API.ListPoints(ctx, page)
}

func (r *recordingAPI) GetPoint(ctx context.Context, id int64) (model.Point, error) {
	r.record(apiCall{name: "get", id: id})
	return r.API.GetPoint(ctx, id)
}

func (r *recordingAPI) CreatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	r.record(apiCall{name: "create", body: p})
	return r.API.CreatePoint(ctx, p)
}

func (r *recordingAPI) UpdatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	r.record(apiCall{name: "update", id: p.IDValue(), body: p})
	return r.API.UpdatePoint(ctx, p)
}

func (r *recordingAPI) PartialUpdatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	r.record(apiCall{name: "patch", id: p.IDValue(), body: p})
	return r.API.PartialUpdatePoint(ctx, p)
}

func (r *recordingAPI) DeletePoint(ctx context.Context, id int64) error {
	r.record(apiCall{name: "delete", id: id})
	return r.API.DeletePoint(ctx, id)
}

type testApp struct {
	app   *App
	api   *recordingAPI
	store *slice.Store
}

// newTestApp starts a backend seeded with points and an App on path.
func newTestApp(t *testing.T, path string, seed ...string) *testApp {
	t.Helper()

	backend := store.NewMemoryStore()
	for _, title := range seed {
		_, err := backend.Create(context.Background(), &model.Point{Title: title})
		require.NoError(t, err)
	}

	cfg := &config.Config{
		ServerPort:         8080,
		ShutdownTimeout:    time.Second,
		AuthMode:           "none",
		StoreDriver:        "memory",
		AppName:            "pointAdmin",
		CORSAllowedOrigins: []string{"*"},
	}
	ts := httptest.NewServer(server.New(cfg, zaptest.NewLogger(t), backend, nil).Router())
	t.Cleanup(ts.Close)

	c, err := client.New(client.Options{BaseURL: ts.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	api := &recordingAPI{API: c}
	st := slice.New(api, zaptest.NewLogger(t))
	t.Cleanup(st.Wait)

	app := NewApp(Options{Store: st, Logger: zaptest.NewLogger(t), Path: path, PageSize: 20})
	return &testApp{app: app, api: api, store: st}
}

// exec runs cmd and every command it leads to, feeding messages back into
// the App. Spinner ticks are dropped so animation loops end.
func (ta *testApp) exec(t *testing.T, cmd tea.Cmd) {
	t.Helper()

	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "command loop did not settle")

		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}

		switch msg := next().(type) {
		case nil, spinner.TickMsg, tea.QuitMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, c := ta.app.Update(msg)
			queue = append(queue, c)
		}
	}
}

func (ta *testApp) mount(t *testing.T) {
	t.Helper()
	ta.exec(t, ta.app.view.mount())
}

func (ta *testApp) press(t *testing.T, keys ...tea.KeyMsg) {
	t.Helper()
	for _, k := range keys {
		_, cmd := ta.app.Update(k)
		ta.exec(t, cmd)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func TestApp_DefaultsToList(t *testing.T) {
	st := slice.New(&recordingAPI{}, nil)

	for _, path := range []string{"", "/unknown", "/point/xyz"} {
		app := NewApp(Options{Store: st, Path: path})

		assert.Equal(t, RouteList, app.Route().Name, path)
		assert.Equal(t, ListPath, app.Path(), path)
	}
}

func TestApp_ListMount(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point", "Alpha", "Beta", "Gamma")

	// Act
	ta.mount(t)

	// Assert
	lists := ta.api.named("list")
	require.Len(t, lists, 1)
	assert.Equal(t, model.PageRequest{Page: 0, Size: 20, Sort: []string{"id,asc"}}, lists[0].page)

	st := ta.store.State()
	assert.Len(t, st.Entities, 3)
	assert.Equal(t, 3, st.TotalItems)

	out := ta.app.View()
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "Gamma")
	assert.Contains(t, out, "Showing 1 - 3 of 3 items")
}

func TestApp_ListEmpty(t *testing.T) {
	ta := newTestApp(t, "/point")

	ta.mount(t)

	assert.Contains(t, ta.app.View(), "No Points found")
}

func TestApp_ListLoadingShowsSpinner(t *testing.T) {
	ta := newTestApp(t, "/point", "Alpha")
	ta.store.Dispatch(slice.Pending{Op: slice.OpList})

	_, _ = ta.app.Update(settledMsg{op: slice.OpList})

	out := ta.app.View()
	assert.Contains(t, out, "Loading points")
	assert.NotContains(t, out, "Alpha")
}

func TestApp_ListNavigation(t *testing.T) {
	tests := []struct {
		name      string
		key       tea.KeyMsg
		wantRoute string
		wantPath  string
	}{
		{"new", runes("n"), RouteNew, "/point/new"},
		{"detail", key(tea.KeyEnter), RouteDetail, "/point/1"},
		{"edit", runes("e"), RouteEdit, "/point/1/edit"},
		{"delete keeps query", runes("d"), RouteDelete, "/point/1/delete?page=0&size=20&sort=id,asc"},
		{"sort field", runes("s"), RouteList, "/point?page=0&size=20&sort=title,asc"},
		{"sort order", runes("o"), RouteList, "/point?page=0&size=20&sort=id,desc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ta := newTestApp(t, "/point", "Alpha", "Beta")
			ta.mount(t)

			// Act
			ta.press(t, tt.key)

			// Assert
			assert.Equal(t, tt.wantRoute, ta.app.Route().Name)
			assert.Equal(t, tt.wantPath, ta.app.Path())
		})
	}
}

func TestApp_ListSelectRow(t *testing.T) {
	ta := newTestApp(t, "/point", "Alpha", "Beta")
	ta.mount(t)

	ta.press(t, key(tea.KeyDown), key(tea.KeyEnter))

	assert.Equal(t, RouteDetail, ta.app.Route().Name)
	assert.Equal(t, int64(2), ta.app.Route().ID)
}

func TestApp_ListPaging(t *testing.T) {
	// Arrange
	titles := make([]string, 25)
	for i := range titles {
		titles[i] = "Point"
	}
	ta := newTestApp(t, "/point", titles...)
	ta.mount(t)

	// Act: previous page on the first page is a no-op.
	ta.press(t, key(tea.KeyLeft))
	assert.Equal(t, "/point", ta.app.Path())

	ta.press(t, key(tea.KeyRight))

	// Assert
	assert.Equal(t, "/point?page=1&size=20&sort=id,asc", ta.app.Path())
	lists := ta.api.named("list")
	require.Len(t, lists, 2)
	assert.Equal(t, 1, lists[1].page.Page)
	assert.Len(t, ta.store.State().Entities, 5)

	// Next page on the last page is a no-op.
	ta.press(t, key(tea.KeyRight))
	assert.Len(t, ta.api.named("list"), 2)
}

func TestApp_DetailView(t *testing.T) {
	ta := newTestApp(t, "/point/2", "Alpha", "Beta")

	ta.mount(t)

	out := ta.app.View()
	assert.Contains(t, out, "Beta")
	assert.Equal(t, int64(2), ta.store.State().Entity.IDValue())

	ta.press(t, runes("e"))
	assert.Equal(t, "/point/2/edit", ta.app.Path())
}

func TestApp_DetailView_NotFound(t *testing.T) {
	ta := newTestApp(t, "/point/9", "Alpha")

	ta.mount(t)

	out := ta.app.View()
	assert.Contains(t, out, "Point 9 is not available")
	assert.Contains(t, out, "404", "status line shows the failure")

	ta.press(t, key(tea.KeyEsc))
	assert.Equal(t, RouteList, ta.app.Route().Name)
}

func TestApp_CreateForm(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/new")
	ta.mount(t)
	form := ta.app.view.(*formView)

	// Act
	ta.press(t, runes("Fresh"), key(tea.KeyTab), key(tea.KeyEnter))

	// Assert
	creates := ta.api.named("create")
	require.Len(t, creates, 1)
	assert.Equal(t, "Fresh", creates[0].body.Title)
	assert.Nil(t, creates[0].body.Description, "empty description is not sent")
	assert.Nil(t, creates[0].body.ID)

	assert.Equal(t, RouteList, ta.app.Route().Name, "navigates back after success")
	assert.False(t, form.watch.armed())

	ta.store.Wait()
	assert.Len(t, ta.store.State().Entities, 1)
}

func TestApp_CreateForm_RequiresTitle(t *testing.T) {
	ta := newTestApp(t, "/point/new")
	ta.mount(t)

	ta.press(t, key(tea.KeyCtrlS))

	assert.Empty(t, ta.api.named("create"))
	assert.Equal(t, RouteNew, ta.app.Route().Name)
	assert.Contains(t, ta.app.View(), model.ErrEmptyTitle.Error())
}

func TestApp_CreateForm_IgnoresStaleSuccess(t *testing.T) {
	// Arrange: a delete elsewhere leaves UpdateSuccess set.
	ta := newTestApp(t, "/point/new", "Alpha")
	ta.store.Delete(context.Background(), 1)
	ta.store.Wait()
	require.True(t, ta.store.State().UpdateSuccess)

	ta.mount(t)

	// Act
	_, cmd := ta.app.Update(settledMsg{op: slice.OpDelete})

	// Assert
	assert.Nil(t, cmd)
	assert.Equal(t, RouteNew, ta.app.Route().Name)
}

func TestApp_CreateForm_SettlesDespiteLiveRefresh(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/new")
	ta.mount(t)
	form := ta.app.view.(*formView)
	form.inputs[fieldTitle].SetValue("Fresh")

	_, cmd := ta.app.Update(key(tea.KeyCtrlS))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, settledMsg{}, msg)

	// A live update starts a list load before the App sees the write settle.
	ta.store.Dispatch(slice.Pending{Op: slice.OpList})
	require.False(t, ta.store.State().UpdateSuccess)

	// Act
	_, next := ta.app.Update(msg)
	ta.exec(t, next)

	// Assert
	assert.Equal(t, RouteList, ta.app.Route().Name)
	assert.False(t, form.watch.armed())
}

func TestApp_EditForm(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/1/edit", "Alpha")
	ta.mount(t)
	form := ta.app.view.(*formView)
	require.True(t, form.populated)
	assert.Equal(t, "Alpha", form.inputs[fieldTitle].Value())

	form.inputs[fieldTitle].SetValue("Alpha 2")
	form.inputs[fieldDescription].SetValue("described")

	// Act
	ta.press(t, key(tea.KeyCtrlS))

	// Assert
	updates := ta.api.named("update")
	require.Len(t, updates, 1)
	assert.Equal(t, int64(1), updates[0].id)
	assert.Equal(t, "Alpha 2", updates[0].body.Title)
	assert.Equal(t, "described", updates[0].body.DescriptionValue())

	assert.Equal(t, RouteList, ta.app.Route().Name)
	assert.Equal(t, "Alpha 2", ta.store.State().Entity.Title)
}

func TestApp_EditForm_PartialUpdate(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/1/edit", "Alpha")
	ta.mount(t)
	form := ta.app.view.(*formView)
	form.inputs[fieldDescription].SetValue("only this")

	// Act
	ta.press(t, key(tea.KeyCtrlP))

	// Assert
	patches := ta.api.named("patch")
	require.Len(t, patches, 1)
	assert.Empty(t, patches[0].body.Title, "unchanged title is not sent")
	assert.Equal(t, "only this", patches[0].body.DescriptionValue())

	assert.Equal(t, RouteList, ta.app.Route().Name)
	entity := ta.store.State().Entity
	assert.Equal(t, "Alpha", entity.Title)
	assert.Equal(t, "only this", entity.DescriptionValue())
}

func TestApp_EditForm_FailedSaveCanRetry(t *testing.T) {
	// Arrange: the point disappears between load and save.
	ta := newTestApp(t, "/point/1/edit", "Alpha")
	ta.mount(t)
	form := ta.app.view.(*formView)
	require.NoError(t, ta.api.DeletePoint(context.Background(), 1))

	// Act
	ta.press(t, key(tea.KeyCtrlS))

	// Assert
	assert.Equal(t, RouteEdit, ta.app.Route().Name)
	assert.NotEmpty(t, ta.store.State().ErrorMessage)
	assert.False(t, form.watch.armed(), "a rejected save disarms the watch")

	ta.press(t, key(tea.KeyCtrlS))
	assert.Len(t, ta.api.named("update"), 2)
}

func TestApp_DeleteDialog_Confirm(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point?page=0&size=20&sort=id,asc", "Alpha", "Beta")
	ta.mount(t)
	ta.press(t, runes("d"))
	require.Equal(t, RouteDelete, ta.app.Route().Name)
	require.NotNil(t, ta.app.underlay, "dialog is drawn over the list")
	assert.Contains(t, ta.app.View(), "Are you sure you want to delete Point 1 (Alpha)?")

	// Act
	ta.press(t, runes("y"))
	ta.store.Wait()

	// Assert
	assert.Equal(t, RouteList, ta.app.Route().Name)
	assert.Equal(t, "/point?page=0&size=20&sort=id,asc", ta.app.Path())

	calls := ta.api.recorded()
	deleteAt := -1
	refreshed := false
	for i, c := range calls {
		switch {
		case c.name == "delete":
			deleteAt = i
		case c.name == "list" && c.page.IsZero() && deleteAt >= 0 && i > deleteAt:
			refreshed = true
		}
	}
	require.GreaterOrEqual(t, deleteAt, 0)
	assert.True(t, refreshed, "list refreshed after delete")

	st := ta.store.State()
	require.Len(t, st.Entities, 1)
	assert.Equal(t, "Beta", st.Entities[0].Title)
}

func TestApp_DeleteDialog_Cancel(t *testing.T) {
	ta := newTestApp(t, "/point/1/delete?page=1", "Alpha")
	ta.mount(t)

	ta.press(t, key(tea.KeyEsc))

	assert.Equal(t, "/point?page=1", ta.app.Path())
	assert.Empty(t, ta.api.named("delete"))
}

func TestApp_DeleteDialog_Failure(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/1/delete", "Alpha")
	ta.mount(t)
	require.NoError(t, ta.api.DeletePoint(context.Background(), 1))

	// Act
	ta.press(t, runes("y"))

	// Assert
	assert.Equal(t, RouteDelete, ta.app.Route().Name)
	assert.Contains(t, ta.app.View(), "404")
	dialog := ta.app.view.(*deleteDialog)
	assert.False(t, dialog.confirmed, "dialog can be confirmed again")
	assert.True(t, dialog.watch.armed())
}

func TestApp_DeleteDialog_SettlesDespiteLiveRefresh(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point/1/delete?page=0", "Alpha")
	ta.mount(t)

	_, cmd := ta.app.Update(runes("y"))
	require.NotNil(t, cmd)
	msg := cmd()
	ta.store.Dispatch(slice.Pending{Op: slice.OpList})

	// Act
	_, next := ta.app.Update(msg)
	ta.exec(t, next)

	// Assert
	assert.Equal(t, "/point?page=0", ta.app.Path())
}

func TestApp_NavigateMsg(t *testing.T) {
	ta := newTestApp(t, "/point", "Alpha")

	_, cmd := ta.app.Update(NavigateMsg{Path: "/point/1"})
	ta.exec(t, cmd)

	assert.Equal(t, RouteDetail, ta.app.Route().Name)
	assert.Len(t, ta.api.named("get"), 1)
}

func TestApp_StoreChangedResubscribes(t *testing.T) {
	ta := newTestApp(t, "/point", "Alpha")

	_, cmd := ta.app.Update(storeChangedMsg{})

	assert.NotNil(t, cmd)
}

func TestApp_Quit(t *testing.T) {
	ta := newTestApp(t, "/point")

	_, cmd := ta.app.Update(key(tea.KeyCtrlC))

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestApp_ListQuitReleasesSubscription(t *testing.T) {
	// Arrange
	ta := newTestApp(t, "/point", "Alpha")
	ta.mount(t)
	select {
	case <-ta.app.changes:
	default:
	}

	// Act
	ta.press(t, runes("q"))

	// Assert
	ta.store.Reset()
	select {
	case <-ta.app.changes:
		t.Fatal("store still signals the App after quitting")
	default:
	}
}
