package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// RequestIDHeaderName is echoed on every response so client reports can be
// matched with server logs.
const RequestIDHeaderName = "X-Request-ID"
