// Package snapoff renders self-contained UI components on the server and
// keeps their state per browser session.
//
// A component is a directory with up to four files:
//
//	counter/
//	    component.json   metadata, exposed to the view as .meta
//	    handler.star     create_state and event transitions (Starlark)
//	    view.html        html/template markup
//	    style.css        optional, scoped to each rendered instance
//
// A Go Handler registered under the component's name replaces handler.star.
//
// # Rendering
//
// Engine.Render creates an instance: a fresh id, initial state from
// create_state(props), and an entry in the caller's session. The view
// receives .state, .props, .meta (with .meta.id and .meta.name),
// .styleTag and .styleAttr. The first element of the output carries an
// instance-scope attribute and the style block is rewritten so its
// selectors only match inside that instance. Render never fails; errors
// are logged and replaced by an inline diagnostic.
//
//	<button {{event $ "increment"}}>+</button>
//
// expands to HTMX attributes posting to {EventPath}/{id}/increment and
// swapping the instance root with the response. Because the swap replaces
// the root element, views put .styleTag inside it:
//
//	<div class="counter" {{.styleAttr}}>
//	  {{.styleTag}}
//	  ...
//	</div>
//
// # Events
//
// Engine.Handler serves those posts. It finds the instance in the
// request's session, runs the named transition with the form or JSON
// payload, stores the new state and answers with the re-rendered
// instance. Events on one instance are processed one at a time. Missing
// instances and definitions answer 404, unknown events and malformed
// payloads 400, handler failures 500.
//
// Sessions come from the request context, as placed there by
// session.Manager's middleware.
//
// # Realtime
//
// With a broadcast.Hub configured, Engine.Broadcast pushes an HTML
// fragment to every websocket client. Fragments carrying ws-swap="message"
// and an id are swapped into the matching element by the HTMX ws
// extension; see NoticeFragment.
package snapoff
