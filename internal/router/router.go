package router

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/mux"

	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/logger"
)

const maxRedirects = 5

// Navigation is completed transition
type Navigation struct {
	Route  Route
	Path   string
	Params map[string]string
	Query  url.Values

	// Document title derived after navigation
	Title string

	// Path that was requested originally if guard redirected
	RedirectedFrom string
	Reason         string
}

// Router resolves dashboard paths to routes and guards each transition
type Router struct {
	mux    *mux.Router
	routes map[string]Route
	guard  *Guard
	logger logger.Logger

	mu    sync.RWMutex
	title string
}

func New(guard *Guard, l logger.Logger) *Router {
	r := &Router{
		mux:    mux.NewRouter().StrictSlash(true),
		routes: make(map[string]Route),
		guard:  guard,
		logger: l,
		title:  ProductTag,
	}

	for _, route := range Routes() {
		if route.CatchAll {
			r.mux.PathPrefix(route.Path).Name(route.Name)
		} else {
			r.mux.Path(route.Path).Name(route.Name)
		}
		r.routes[route.Name] = route
	}

	return r
}

// Resolve matches path against route table without guarding
func (r *Router) Resolve(path string) (Route, map[string]string, url.Values, error) {
	u, err := url.Parse(path)
	if err != nil {
		return Route{}, nil, nil, fmt.Errorf("%w: %w", apperrors.ErrRouteNotFound, err)
	}
	if u.Path == "" {
		u.Path = HomePath
	}

	var match mux.RouteMatch
	req := &http.Request{Method: http.MethodGet, URL: u}
	if !r.mux.Match(req, &match) || match.Route == nil {
		return Route{}, nil, nil, fmt.Errorf("%w: %s", apperrors.ErrRouteNotFound, path)
	}

	route, ok := r.routes[match.Route.GetName()]
	if !ok {
		return Route{}, nil, nil, fmt.Errorf("%w: %s", apperrors.ErrRouteNotFound, path)
	}

	return route, match.Vars, u.Query(), nil
}

// Navigate guards transition to path, following guard redirects
func (r *Router) Navigate(path string) (Navigation, error) {
	requested := path
	var reason string

	for range maxRedirects {
		route, params, query, err := r.Resolve(path)
		if err != nil {
			return Navigation{}, err
		}

		decision := r.guard.Check(route)
		if !decision.Allowed() {
			r.logger.Debug("Navigation redirected", "from", path, "to", decision.Redirect, "reason", decision.Reason)
			path = decision.Redirect
			reason = decision.Reason
			continue
		}

		nav := Navigation{
			Route:  route,
			Path:   path,
			Params: params,
			Query:  query,
			Title:  route.DocumentTitle(),
		}
		if path != requested {
			nav.RedirectedFrom = requested
			nav.Reason = reason
		}

		r.mu.Lock()
		r.title = nav.Title
		r.mu.Unlock()

		return nav, nil
	}

	return Navigation{}, fmt.Errorf("%w: %s", apperrors.ErrTooManyRedirects, requested)
}

// Title of the last completed navigation
func (r *Router) Title() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.title
}
