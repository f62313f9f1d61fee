// Package server provides the HTTP routing, middleware and OAuth callback handling used by the login flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added.
//
// [CallbackRouter] registers method-qualified [http.ServeMux] patterns and answers every other
// path with a 404, so browser side requests never reach the callback.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. Failures are classified with the shared auth sentinels:
//   - error=access_denied : [shared.ErrAuthDenied]
//   - anything else (state mismatch, missing code, failed exchange) : [shared.ErrAuthProtocol]
//
// It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
