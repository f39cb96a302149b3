package identck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPathValid(t *testing.T) {
	v := New()
	cases := []struct{ in, want string }{
		{"$status", "status"},
		{"name", "name"},
		{"address.city", "address.city"},
		{"$a.b.c", "a.b.c"},
	}
	for _, c := range cases {
		got, err := v.FieldPath(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestFieldPathRejectsBadSegments(t *testing.T) {
	v := New()
	bad := []string{"$", "a..b", "a.1b", "a.b-c", ""}
	for _, in := range bad {
		_, err := v.FieldPath(in)
		assert.Error(t, err, "expected error for %q", in)
	}
}

func TestFieldPathRejectsOverLength(t *testing.T) {
	v := New()
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, err := v.FieldPath(string(long))
	assert.Error(t, err)
}

func TestTableNameValid(t *testing.T) {
	v := New()
	assert.NoError(t, v.TableName("orders"))
	assert.NoError(t, v.TableName("Order_Items2"))
}

func TestTableNameRejectsDotsAndLeadingDigits(t *testing.T) {
	v := New()
	assert.Error(t, v.TableName("a.b"))
	assert.Error(t, v.TableName("1orders"))
	assert.Error(t, v.TableName(""))
}

func TestFieldPathCaches(t *testing.T) {
	v := New()
	_, err := v.FieldPath("repeat.me")
	require.NoError(t, err)
	got, err := v.FieldPath("repeat.me")
	require.NoError(t, err)
	assert.Equal(t, "repeat.me", got)
}
