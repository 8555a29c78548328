// internal/mocks/mocks_test.go
package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

func TestMockTransport_EmitAndOnce(t *testing.T) {
	tr := NewMockTransport()

	var persistent, oneShot int
	tr.On("chan", func(ipc.Message) { persistent++ })
	tr.Once("chan", func(ipc.Message) { oneShot++ })

	assert.Equal(t, 2, tr.Emit("chan"))
	assert.Equal(t, 1, tr.Emit("chan"))
	assert.Equal(t, 2, persistent)
	assert.Equal(t, 1, oneShot)
	assert.Equal(t, 1, tr.Subscribers("chan"))
}

func TestMockTransport_Expectations(t *testing.T) {
	tr := NewMockTransport()
	tr.Mock.On("Send", ipc.ChannelWindowCloseRequest, int64(3)).Return(nil).Once()
	tr.Mock.On("SendSync", ipc.ChannelNavigationSyncRequest, ipc.NavLength).Return(5, nil).Once()
	tr.Mock.On("Send", ipc.ChannelWindowCloseRequest, int64(4)).Return(errors.New("down")).Once()

	require.NoError(t, tr.Send(ipc.ChannelWindowCloseRequest, int64(3)))
	v, err := tr.SendSync(context.Background(), ipc.ChannelNavigationSyncRequest, ipc.NavLength)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Error(t, tr.Send(ipc.ChannelWindowCloseRequest, int64(4)))
	tr.AssertExpectations(t)
}
