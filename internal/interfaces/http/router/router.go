package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// Resource is one REST resource: a path prefix, its routes and the
// middleware that guards them.
type Resource struct {
	name   string
	prefix string
	guards []gin.HandlerFunc
	routes []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

func NewResource(name, prefix string) *Resource {
	return &Resource{name: name, prefix: prefix}
}

func (r *Resource) Name() string   { return r.name }
func (r *Resource) Prefix() string { return r.prefix }

// Guard appends middleware that runs before every route of the resource
func (r *Resource) Guard(mw ...gin.HandlerFunc) *Resource {
	r.guards = append(r.guards, mw...)
	return r
}

func (r *Resource) GET(p string, h ...gin.HandlerFunc) *Resource {
	return r.add(http.MethodGet, p, h)
}

func (r *Resource) POST(p string, h ...gin.HandlerFunc) *Resource {
	return r.add(http.MethodPost, p, h)
}

func (r *Resource) PATCH(p string, h ...gin.HandlerFunc) *Resource {
	return r.add(http.MethodPatch, p, h)
}

func (r *Resource) DELETE(p string, h ...gin.HandlerFunc) *Resource {
	return r.add(http.MethodDelete, p, h)
}

func (r *Resource) add(method, p string, h []gin.HandlerFunc) *Resource {
	r.routes = append(r.routes, route{method: method, path: p, handlers: h})
	return r
}

// Endpoints lists "METHOD /prefix/path" for every route, in declaration order
func (r *Resource) Endpoints() []string {
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.method+" "+path.Join(r.prefix, rt.path))
	}
	return out
}

func (r *Resource) mount(api *gin.RouterGroup) {
	g := api.Group(r.prefix, r.guards...)
	for _, rt := range r.routes {
		g.Handle(rt.method, rt.path, rt.handlers...)
	}
}

// Mount attaches resources under /api/<version>. An empty version means v1.
func Mount(engine *gin.Engine, version string, resources ...*Resource) *gin.RouterGroup {
	if version == "" {
		version = "v1"
	}
	api := engine.Group("/api/" + version)
	for _, r := range resources {
		r.mount(api)
	}
	return api
}
