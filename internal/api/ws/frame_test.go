package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallFrameLayout(t *testing.T) {
	frame := EncodeCall(7, []byte(`{"promiseId":1}`), []byte{0xde, 0xad})

	assert.Equal(t, []byte{0, 0, 0, 7, 0, 0, 0, 15}, frame[:8])

	c, err := DecodeCall(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), c.OpID)
	assert.Equal(t, `{"promiseId":1}`, string(c.Control))
	assert.Equal(t, []byte{0xde, 0xad}, c.ZeroCopy)
}

func TestCallWithoutZeroCopy(t *testing.T) {
	c, err := DecodeCall(EncodeCall(1, []byte(`{}`), nil))
	require.NoError(t, err)
	assert.Nil(t, c.ZeroCopy)
}

func TestDecodeCallRejectsBadFrames(t *testing.T) {
	_, err := DecodeCall([]byte{0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = DecodeCall([]byte{0, 0, 0, 1, 0, 0, 0, 9, '{', '}'})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds frame payload")
}

func TestReplyFrame(t *testing.T) {
	frame := EncodeReply(258, []byte(`{"ok":1,"promiseId":null}`))
	assert.Equal(t, []byte{0, 0, 1, 2}, frame[:4])

	id, buf, err := DecodeReply(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(258), id)
	assert.Equal(t, `{"ok":1,"promiseId":null}`, string(buf))

	_, _, err = DecodeReply([]byte{1})
	assert.ErrorIs(t, err, ErrShortFrame)
}
