package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/user"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	conf := &core.Config{Env: "TEST", TestMode: true, Debug: debug}
	return NewRollbarLogger(log.New(buf, "API : ", 0), conf), buf
}

func TestRollbarLogger_Print(t *testing.T) {
	l, buf := newTestLogger(false)
	assert.False(t, l.reporting())

	usr := user.User{ID: "u1", Username: "jane"}
	l.Warn("several active subscriptions", usr, map[string]interface{}{"count": 2})
	out := buf.String()
	assert.Contains(t, out, "API : [WARN] several active subscriptions")
	assert.Contains(t, out, "user: u1 (jane)")
	assert.Contains(t, out, "map[count:2]")

	buf.Reset()
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l, buf = newTestLogger(true)
	l.Debug("shown", errors.New("boom"))
	assert.Contains(t, buf.String(), "[DEBUG] shown")
	assert.Contains(t, buf.String(), "boom")
}

func TestRollbarLogger_Prepare(t *testing.T) {
	l, _ := newTestLogger(false)
	err := errors.New("boom")

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error", args: []interface{}{err}, want: []interface{}{"msg", err}},
		{
			name: "extras merged",
			args: []interface{}{map[string]interface{}{"a": 1}, err, map[string]interface{}{"b": 2}},
			want: []interface{}{"msg", err, map[string]interface{}{"a": 1, "b": 2}},
		},
		{
			name: "user roles",
			args: []interface{}{user.User{ID: "u1", Roles: []string{user.RoleStudent}}, user.User{ID: "u2"}},
			want: []interface{}{"msg", map[string]interface{}{"roles": []string{user.RoleStudent}}},
		},
		{name: "anonymous user", args: []interface{}{user.User{}}, want: []interface{}{"msg"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, l.prepare("msg", tc.args))
		})
	}
}
