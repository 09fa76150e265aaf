package auth

// Scopes recognised by the API.
const (
	ScopeAdmin = "matchday:admin"
)
