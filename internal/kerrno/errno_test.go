package kerrno

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoInt64IsRawReturnValue(t *testing.T) {
	assert.Equal(t, int64(-2), ENOENT.Int64())
	assert.Equal(t, int64(-1024), UNSUPPORTED.Int64())
}

func TestErrnoErrorStringsKnownCode(t *testing.T) {
	assert.Equal(t, "ENOTDIR", ENOTDIR.Error())
}

func TestAsErrnoRecoversCode(t *testing.T) {
	var err error = EBADF
	e, ok := AsErrno(err)
	assert.True(t, ok)
	assert.Equal(t, EBADF, e)

	_, ok = AsErrno(nil)
	assert.False(t, ok)
}
