package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// ConvertToGotgprotoSession wraps gotd session data in the row format the
// gotgproto sql session store reads back on Init.
func ConvertToGotgprotoSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errors.New("session data is nil")
	}

	wrapped, err := json.Marshal(struct {
		Version int
		Data    *session.Data
	}{Version: storage.LatestVersion, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    wrapped,
	}, nil
}
