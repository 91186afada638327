// Package httpapi exposes a goIAM Engine as a JSON API over gin.
//
// Routes live under /api/v1/auth. Bearer routes run [Handler.Authenticate]
// first. Engine errors map onto statuses with [StatusFor]; the body is
// {"code","message"}. Confirmation and reset links are built on
// [Options.PublicBaseURL], or on the request's host when it is listed in
// [Options.AllowedHosts]; any other Host is rejected. Forwarding headers are
// only believed from [Options.TrustedProxies].
package httpapi
