package telegram

import (
	"encoding/json"
	"testing"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToGotgprotoSession_WrapsData(t *testing.T) {
	input := &session.Data{
		DC:      2,
		Addr:    "149.154.167.40:443",
		AuthKey: []byte("test-auth-key-32-bytes-long-abc"),
	}

	result, err := ConvertToGotgprotoSession(input)
	require.NoError(t, err)
	assert.Equal(t, storage.LatestVersion, result.Version)

	var parsed struct {
		Version int
		Data    session.Data
	}
	require.NoError(t, json.Unmarshal(result.Data, &parsed))

	assert.Equal(t, storage.LatestVersion, parsed.Version)
	assert.Equal(t, 2, parsed.Data.DC)
	assert.Equal(t, "149.154.167.40:443", parsed.Data.Addr)
	assert.Equal(t, input.AuthKey, parsed.Data.AuthKey)
}

func TestConvertToGotgprotoSession_NilInput(t *testing.T) {
	result, err := ConvertToGotgprotoSession(nil)

	assert.Error(t, err)
	assert.Nil(t, result)
}
