package telegram

// Status is the sender account state.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// Peer is a resolved user that can receive direct messages.
type Peer struct {
	ID         int64  // user id
	AccessHash int64  // access hash for api calls
	Username   string // username without @
}
