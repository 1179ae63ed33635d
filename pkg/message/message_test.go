package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_ErrorClearsSuccess(t *testing.T) {
	r := NewResult("test://a.cn")
	assert.True(t, r.Success)
	r.Warnf("", 1, 2, "watch out")
	assert.True(t, r.Success)
	r.AddError("broken", "", 3, 4)
	assert.False(t, r.Success)
	assert.True(t, r.HasErrors())
}

func TestResult_MessagesInheritFileURI(t *testing.T) {
	r := NewResult("test://a.cn")
	r.AddError("broken", "", 1, 1)
	require.Len(t, r.Messages, 1)
	assert.Equal(t, "test://a.cn", r.Messages[0].FileURI)
}

func TestResult_TransferMessages(t *testing.T) {
	src := NewResult("test://src.cn")
	src.AddError("bad", "", 1, 1)
	src.Warnf("", 2, 2, "meh")

	dst := NewResult("test://dst.cn")
	dst.TransferMessages(src)
	assert.False(t, dst.Success)
	assert.Len(t, dst.Messages, 2)
	assert.Empty(t, src.Messages)
}

func TestResult_ByKind(t *testing.T) {
	r := NewResult("")
	r.AddMessage(Info, "i", "", -1, -1)
	r.AddMessage(Warning, "w", "", -1, -1)
	r.AddMessage(Error, "e", "", -1, -1)
	assert.Len(t, r.ByKind(Info), 1)
	assert.Len(t, r.ByKind(Warning), 1)
	assert.Len(t, r.ByKind(Error), 1)
}

func TestWarnConfig_SetByName(t *testing.T) {
	w := DefaultWarnConfig()
	require.True(t, w.SetByName("shadowing-globals", true))
	assert.True(t, w.WarnShadowingGlobals)
	require.True(t, w.SetByName("unrecognized-escape-sequences", false))
	assert.False(t, w.WarnUnrecognizedEscapeSequences)
	assert.False(t, w.SetByName("no-such-warning", true))
}
