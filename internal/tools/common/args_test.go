package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/tools/tooltest"
)

func TestStringArg(t *testing.T) {
	req := tooltest.Request("t", map[string]any{"a": "x", "empty": "", "num": 3.0})

	assert.Equal(t, "x", StringArg(req, "a", "def"))
	assert.Equal(t, "def", StringArg(req, "empty", "def"))
	assert.Equal(t, "def", StringArg(req, "num", "def"))
	assert.Equal(t, "def", StringArg(req, "missing", "def"))
}

func TestRequiredString(t *testing.T) {
	req := tooltest.Request("t", map[string]any{"id": "abc"})

	v, res := RequiredString(req, "id")
	assert.Nil(t, res)
	assert.Equal(t, "abc", v)

	_, res = RequiredString(req, "to")
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Equal(t, "to is required", tooltest.Text(t, res))
}

func TestIntArg(t *testing.T) {
	req := tooltest.Request("t", map[string]any{"f": 5.0, "s": "7", "bad": "x", "b": true})

	n, err := IntArg(req, "f", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = IntArg(req, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = IntArg(req, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	_, err = IntArg(req, "bad", 1)
	assert.Error(t, err)
	_, err = IntArg(req, "b", 1)
	assert.Error(t, err)
}

func TestBoolArg(t *testing.T) {
	req := tooltest.Request("t", map[string]any{"yes": true, "str": "true", "junk": "maybe"})

	assert.True(t, BoolArg(req, "yes", false))
	assert.True(t, BoolArg(req, "str", false))
	assert.False(t, BoolArg(req, "junk", false))
	assert.True(t, BoolArg(req, "missing", true))
}

func TestTimeArg(t *testing.T) {
	def := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := tooltest.Request("t", map[string]any{"at": "2026-03-04T10:00:00Z", "bad": "tomorrow"})

	at, err := TimeArg(req, "at", def)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), at)

	at, err = TimeArg(req, "missing", def)
	require.NoError(t, err)
	assert.Equal(t, def, at)

	_, err = TimeArg(req, "bad", def)
	assert.Error(t, err)
}
