package views

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vyrodovalexey/point-admin/internal/model"
)

// Route names.
const (
	RouteList   = "point-list"
	RouteNew    = "point-new"
	RouteDetail = "point-detail"
	RouteEdit   = "point-edit"
	RouteDelete = "point-delete"
)

// ListPath is the path of the point list.
const ListPath = "/point"

// Route is a resolved client-side path.
type Route struct {
	Name  string
	ID    int64
	Query url.Values
}

// Router maps client-side paths to routes. Matching and URL building are
// done by a gorilla/mux router whose routes carry no handlers.
type Router struct {
	mux *mux.Router
}

// NewRouter registers the point routes.
func NewRouter() *Router {
	r := mux.NewRouter()

	r.Path(ListPath).Name(RouteList)
	r.Path(ListPath + "/new").Name(RouteNew)
	r.Path(ListPath + "/{id:[0-9]+}").Name(RouteDetail)
	r.Path(ListPath + "/{id:[0-9]+}/edit").Name(RouteEdit)
	r.Path(ListPath + "/{id:[0-9]+}/delete").Name(RouteDelete)

	return &Router{mux: r}
}

// Match resolves path. Unknown or malformed paths resolve to the list.
func (r *Router) Match(path string) Route {
	u, err := url.Parse(path)
	if err != nil {
		return Route{Name: RouteList, Query: url.Values{}}
	}

	req := &http.Request{Method: http.MethodGet, URL: u}
	var match mux.RouteMatch
	if !r.mux.Match(req, &match) || match.Route == nil {
		return Route{Name: RouteList, Query: url.Values{}}
	}

	route := Route{Name: match.Route.GetName(), Query: u.Query()}
	if raw, ok := match.Vars["id"]; ok {
		id, err := model.ParseID(raw)
		if err != nil {
			return Route{Name: RouteList, Query: url.Values{}}
		}
		route.ID = id
	}
	return route
}

// Path builds the path of the named route. id is ignored by routes without
// an identifier; query is appended when non-empty.
func (r *Router) Path(name string, id int64, query url.Values) string {
	route := r.mux.Get(name)
	if route == nil {
		route = r.mux.Get(RouteList)
	}

	var pairs []string
	if name == RouteDetail || name == RouteEdit || name == RouteDelete {
		pairs = []string{"id", strconv.FormatInt(id, 10)}
	}

	u, err := route.URLPath(pairs...)
	if err != nil {
		return ListPath
	}
	if len(query) > 0 {
		u.RawQuery = encodeQuery(query)
	}
	return u.String()
}

// encodeQuery encodes query like url.Values.Encode but keeps the comma of
// sort entries readable.
func encodeQuery(query url.Values) string {
	return commaUnescaper.Replace(query.Encode())
}

var commaUnescaper = strings.NewReplacer("%2C", ",")
