// Package gabriel is the identity core of the LittleGabriel API: accounts,
// password hashing, session tokens and the HTTP surface that issues and
// verifies them.
//
// Session authority:
//   - Auther is the only component that signs or verifies session tokens.
//     The primary login, the direct-login cookie path and bearer requests all
//     go through it, so every token carries the same {id, email, name, role}
//     claim set and honours the same revocation list.
//   - Renew copies claims into a fresh token without reading the store. A
//     role change becomes visible after the next login.
//   - Logout denylists the token id until the token would have expired.
//
// HTTP:
//   - RouteAuthenticator builds the ProtectedRoute, RequireRole and
//     OptionalRoute middleware on top of middleware/jwtware.
//   - AuthController exposes register, login, direct-login, logout, renew,
//     me, the reconciled session view, the legacy site password and the
//     password reset flow.
//   - AdminController manages accounts for administrators.
//
// Activity sinks:
//   - ActivitySink is a best-effort audit emitter. Login, logout, renewal,
//     registration, role changes and password resets are recorded; sink
//     errors are logged and never fail the request.
package gabriel
