// Package snapoffecho mounts a snapoff engine on an Echo server.
//
//	e := echo.New()
//	snapoffecho.Mount(e, engine, snapoffecho.Sessions(sessions))
//
// Pages rendered with Echo handlers embed components the usual way:
//
//	func home(c echo.Context) error {
//	    sess := session.FromContext(c.Request().Context())
//	    return snapoffecho.Render(c, engine.Component("counter", nil, sess))
//	}
package snapoffecho

import (
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	snapoff "github.com/pthm/snapoff"
	"github.com/pthm/snapoff/lib/session"
)

// Mount registers the event endpoint on e. The engine reads the instance
// id and event name from the path below its event prefix, so the route is
// a wildcard. mw runs before the dispatcher, typically Sessions.
func Mount(e *echo.Echo, engine *snapoff.Engine, mw ...echo.MiddlewareFunc) {
	e.POST(engine.EventPath()+"/*", Handler(engine), mw...)
}

// Handler is the event dispatcher as an Echo handler.
func Handler(engine *snapoff.Engine) echo.HandlerFunc {
	return echo.WrapHandler(engine.Handler())
}

// Sessions attaches a snapoff session to every request, setting the
// cookie on first contact.
func Sessions(m *session.Manager) echo.MiddlewareFunc {
	return echo.WrapMiddleware(m.Middleware)
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return snapoffecho.Render(c, myTemplate())
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}
