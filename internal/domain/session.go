package domain

// Session is the client's belief about its current authentication state.
// Exactly one exists per running companion instance; all mutation goes
// through the session manager.
type Session struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	Username        string `json:"username,omitempty"`
}
