package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns the router used for the ops endpoints.
// Unknown paths and methods both answer with a plain 404 so probes never
// get redirected.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = false
	r.RedirectTrailingSlash = false
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = NotFoundHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = false
	r.PanicHandler = func(ctx *RequestCtx, v interface{}) {
		ctx.Logger().Printf("[xhttp] panic on %s: %v", ctx.Path(), v)
		ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
	}
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	ctx.Error(StatusText(StatusNotFound), StatusNotFound)
}
