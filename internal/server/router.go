package server

import (
	"net/http"
)

const strayRequestBody = "spotsync: this address only serves the Spotify login callback\n"

// CallbackRouter routes requests for the short-lived login listener.
//
// Routes use method-qualified [http.ServeMux] patterns, so a wrong method on a known path gets
// 405. Any other GET a browser makes (favicon, stray reloads) gets a plain 404 that never
// touches the callback handler.
type CallbackRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewCallbackRouter creates an empty [CallbackRouter].
func NewCallbackRouter() *CallbackRouter {
	r := &CallbackRouter{mux: http.NewServeMux()}
	r.mux.HandleFunc(http.MethodGet+" /", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, strayRequestBody, http.StatusNotFound)
	})
	return r
}

// Use appends middleware. It only affects routes registered afterwards.
func (r *CallbackRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method and path.
func (r *CallbackRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Handle(method+" "+exact(path), r.Apply(handler))
}

// Handler registers h for GET on every path it reports.
func (r *CallbackRouter) Handler(h Handler) {
	wrapped := r.Apply(h)
	for _, route := range h.Routes() {
		r.mux.Handle(http.MethodGet+" "+exact(route), wrapped)
	}
}

func (r *CallbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler so the first middleware added runs first.
func (r *CallbackRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}

// exact keeps a root route from colliding with the 404 fallback.
func exact(path string) string {
	if path == "/" {
		return "/{$}"
	}
	return path
}
