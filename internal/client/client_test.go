package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vyrodovalexey/point-admin/internal/auth"
	"github.com/vyrodovalexey/point-admin/internal/handler"
	"github.com/vyrodovalexey/point-admin/internal/model"
)

var fixedNow = time.UnixMilli(1700000000000)

func newTestClient(t *testing.T, baseURL string, creds auth.Credentials) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     baseURL,
		Credentials: creds,
		Timeout:     2 * time.Second,
		Now:         func() time.Time { return fixedNow },
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

// recordedRequest captures what the fake API received.
type recordedRequest struct {
	Method      string
	URI         string
	ContentType string
	APIKey      string
	Body        map[string]any
}

func fakeAPI(t *testing.T, status int, header http.Header, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.URI = r.URL.RequestURI()
		rec.ContentType = r.Header.Get("Content-Type")
		rec.APIKey = r.Header.Get(auth.APIKeyHeader)
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://host", "/api"} {
		_, err := New(Options{BaseURL: raw})
		assert.ErrorIs(t, err, ErrBadBaseURL, raw)
	}
}

func TestClient_ListURL(t *testing.T) {
	c := newTestClient(t, "http://localhost:8080", auth.Credentials{})

	tests := []struct {
		name string
		page model.PageRequest
		want string
	}{
		{
			name: "no parameters",
			page: model.PageRequest{},
			want: "api/points?cacheBuster=1700000000000",
		},
		{
			name: "page without sort is not sent",
			page: model.PageRequest{Page: 2, Size: 10},
			want: "api/points?cacheBuster=1700000000000",
		},
		{
			name: "page with sort",
			page: model.PageRequest{Page: 0, Size: 20, Sort: []string{"id,asc"}},
			want: "api/points?page=0&size=20&sort=id,asc&cacheBuster=1700000000000",
		},
		{
			name: "sort with default size",
			page: model.PageRequest{Page: 1, Sort: []string{"title,desc", "id"}},
			want: "api/points?page=1&size=20&sort=title,desc&sort=id&cacheBuster=1700000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ListURL(tt.page))
		})
	}
}

func TestClient_ListPoints(t *testing.T) {
	t.Run("total from header", func(t *testing.T) {
		srv, rec := fakeAPI(t, http.StatusOK, http.Header{TotalCountHeader: {"42"}},
			`[{"id":1,"title":"A"},{"id":2,"title":"B"}]`)
		c := newTestClient(t, srv.URL, auth.Credentials{APIKey: "k1"})

		points, total, err := c.ListPoints(context.Background(), model.PageRequest{Page: 0, Size: 20, Sort: []string{"id,asc"}})

		require.NoError(t, err)
		assert.Len(t, points, 2)
		assert.Equal(t, 42, total)
		assert.Equal(t, http.MethodGet, rec.Method)
		assert.Equal(t, "/api/points?page=0&size=20&sort=id,asc&cacheBuster=1700000000000", rec.URI)
		assert.Equal(t, "k1", rec.APIKey)
	})

	t.Run("missing header falls back to page length", func(t *testing.T) {
		srv, _ := fakeAPI(t, http.StatusOK, nil, `[{"id":1,"title":"A"}]`)
		c := newTestClient(t, srv.URL, auth.Credentials{})

		points, total, err := c.ListPoints(context.Background(), model.PageRequest{})

		require.NoError(t, err)
		assert.Len(t, points, 1)
		assert.Equal(t, 1, total)
	})

	t.Run("empty body list", func(t *testing.T) {
		srv, _ := fakeAPI(t, http.StatusOK, http.Header{TotalCountHeader: {"0"}}, `[]`)
		c := newTestClient(t, srv.URL, auth.Credentials{})

		points, total, err := c.ListPoints(context.Background(), model.PageRequest{})

		require.NoError(t, err)
		assert.NotNil(t, points)
		assert.Empty(t, points)
		assert.Zero(t, total)
	})

	t.Run("malformed header", func(t *testing.T) {
		srv, _ := fakeAPI(t, http.StatusOK, http.Header{TotalCountHeader: {"lots"}}, `[]`)
		c := newTestClient(t, srv.URL, auth.Credentials{})

		_, _, err := c.ListPoints(context.Background(), model.PageRequest{})

		assert.ErrorIs(t, err, ErrBadTotal)
		var te *TransportError
		assert.ErrorAs(t, err, &te)
	})
}

func TestClient_GetPoint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv, rec := fakeAPI(t, http.StatusOK, nil, `{"id":7,"title":"Seven","description":"d"}`)
		c := newTestClient(t, srv.URL, auth.Credentials{})

		p, err := c.GetPoint(context.Background(), 7)

		require.NoError(t, err)
		assert.Equal(t, int64(7), p.IDValue())
		assert.Equal(t, "d", p.DescriptionValue())
		assert.Equal(t, "/api/points/7", rec.URI)
	})

	t.Run("not found", func(t *testing.T) {
		srv, _ := fakeAPI(t, http.StatusNotFound, nil, `{"code":404,"message":"point not found"}`)
		c := newTestClient(t, srv.URL, auth.Credentials{})

		_, err := c.GetPoint(context.Background(), 9)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "GET /api/points/9: 404: point not found", err.Error())
	})

	t.Run("server error with text body", func(t *testing.T) {
		srv, _ := fakeAPI(t, http.StatusInternalServerError, nil, "boom")
		c := newTestClient(t, srv.URL, auth.Credentials{})

		_, err := c.GetPoint(context.Background(), 1)

		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
		assert.Equal(t, "boom", te.Message)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestClient_CreatePoint_CleansAndStripsID(t *testing.T) {
	// Arrange
	srv, rec := fakeAPI(t, http.StatusCreated, nil, `{"id":3,"title":"New"}`)
	c := newTestClient(t, srv.URL, auth.Credentials{Username: "admin", Password: "pw"})

	// Act
	created, err := c.CreatePoint(context.Background(), model.Point{
		ID:          model.Int64Ptr(99),
		Title:       "New",
		Description: model.StringPtr(""),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.IDValue())
	assert.Equal(t, http.MethodPost, rec.Method)
	assert.Equal(t, "/api/points", rec.URI)
	assert.Equal(t, map[string]any{"title": "New"}, rec.Body)
}

func TestClient_UpdatePoint(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusOK, nil, `{"id":5,"title":"Renamed"}`)
	c := newTestClient(t, srv.URL, auth.Credentials{})

	saved, err := c.UpdatePoint(context.Background(), model.Point{ID: model.Int64Ptr(5), Title: "Renamed"})

	require.NoError(t, err)
	assert.Equal(t, "Renamed", saved.Title)
	assert.Equal(t, http.MethodPut, rec.Method)
	assert.Equal(t, "/api/points/5", rec.URI)
	assert.Equal(t, "application/json", rec.ContentType)
	assert.Equal(t, float64(5), rec.Body["id"])
}

func TestClient_PartialUpdatePoint(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusOK, nil, `{"id":5,"title":"Same","description":"new"}`)
	c := newTestClient(t, srv.URL, auth.Credentials{})

	_, err := c.PartialUpdatePoint(context.Background(), model.Point{ID: model.Int64Ptr(5), Description: model.StringPtr("new")})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, rec.Method)
	assert.Equal(t, "application/merge-patch+json", rec.ContentType)
	assert.Equal(t, map[string]any{"id": float64(5), "description": "new"}, rec.Body)
}

func TestClient_WriteWithoutID(t *testing.T) {
	c := newTestClient(t, "http://localhost:1", auth.Credentials{})

	_, err := c.UpdatePoint(context.Background(), model.Point{Title: "x"})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = c.PartialUpdatePoint(context.Background(), model.Point{Title: "x"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestClient_DeletePoint(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusNoContent, nil, "")
	c := newTestClient(t, srv.URL, auth.Credentials{})

	err := c.DeletePoint(context.Background(), 4)

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.Method)
	assert.Equal(t, "/api/points/4", rec.URI)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newTestClient(t, url, auth.Credentials{})

	_, _, err := c.ListPoints(context.Background(), model.PageRequest{})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.NotEmpty(t, err.Error())
}

func TestClient_WatchPoints(t *testing.T) {
	// Arrange
	hub := handler.NewEventHub(zaptest.NewLogger(t))
	router := mux.NewRouter()
	hub.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer func() {
		hub.CloseAllConnections()
		srv.Close()
	}()
	c := newTestClient(t, srv.URL, auth.Credentials{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Act
	events, err := c.WatchPoints(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(model.NewPointEvent(model.EventPointUpdated, 11))

	// Assert
	select {
	case event := <-events:
		assert.Equal(t, model.EventPointUpdated, event.Type)
		assert.Equal(t, int64(11), event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestClient_WatchPoints_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, auth.Credentials{})

	_, err := c.WatchPoints(context.Background())

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
}
