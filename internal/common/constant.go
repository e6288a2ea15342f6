package common

// AuthHeaderName is the HTTP header carrying the bearer token on outbound
// requests to the sync backend.
const AuthHeaderName = "Authorization"

// BearerPrefix prefixes the token value inside AuthHeaderName.
const BearerPrefix = "Bearer "
