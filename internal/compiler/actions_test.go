package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
)

type fsmAction = fsm.Action[ir.IRObject]

func build(t *testing.T, do string, args ir.IRObject) fsmAction {
	t.Helper()
	action, err := NewRegistry().Build(ir.ActionSpec{Do: do, Args: args})
	require.NoError(t, err)
	return action
}

func TestBuiltinInc(t *testing.T) {
	inc := build(t, "inc", ir.IRObject{"field": ir.IRString("count")})
	c, err := inc(ir.IRObject{"count": ir.IRInt(4)}, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(5), c["count"])

	incBy := build(t, "inc", ir.IRObject{"field": ir.IRString("count"), "by": ir.IRInt(-3)})
	c, err = incBy(ir.IRObject{}, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(-3), c["count"], "missing field counts as 0")

	_, err = inc(ir.IRObject{"count": ir.IRString("x")}, ir.Event{})
	assert.Error(t, err)
}

func TestBuiltinSet(t *testing.T) {
	value := ir.IRArray{ir.IRInt(1)}
	set := build(t, "set", ir.IRObject{"field": ir.IRString("xs"), "value": value})

	c, err := set(ir.IRObject{}, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, value, c["xs"])

	c["xs"].(ir.IRArray)[0] = ir.IRInt(9)
	again, err := set(ir.IRObject{}, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRInt(1)}, again["xs"], "set value is copied per call")
}

func TestBuiltinCopy(t *testing.T) {
	cp := build(t, "copy", ir.IRObject{"field": ir.IRString("owner"), "from": ir.IRString("user")})

	c, err := cp(ir.IRObject{}, ir.NewEvent("CLAIM", ir.O("user", ir.IRString("ada"))))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("ada"), c["owner"])

	_, err = cp(ir.IRObject{}, ir.NewEvent("CLAIM"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `payload key "user"`)

	sameName := build(t, "copy", ir.IRObject{"field": ir.IRString("user")})
	c, err = sameName(ir.IRObject{}, ir.NewEvent("CLAIM", ir.O("user", ir.IRString("bo"))))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("bo"), c["user"])
}

func TestBuiltinUnset(t *testing.T) {
	unset := build(t, "unset", ir.IRObject{"field": ir.IRString("x")})

	c, err := unset(ir.IRObject{"x": ir.IRInt(1), "y": ir.IRInt(2)}, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"y": ir.IRInt(2)}, c)

	c, err = unset(ir.IRObject{}, ir.Event{})
	require.NoError(t, err)
	assert.Empty(t, c)
}

func TestBuiltinAppend(t *testing.T) {
	app := build(t, "append", ir.IRObject{"field": ir.IRString("log"), "value": ir.IRString("x")})

	c, err := app(ir.IRObject{}, ir.Event{})
	require.NoError(t, err)
	c, err = app(c, ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRString("x"), ir.IRString("x")}, c["log"])

	_, err = app(ir.IRObject{"log": ir.IRInt(1)}, ir.Event{})
	assert.Error(t, err)
}

func TestBuiltinRequire(t *testing.T) {
	req := build(t, "require", ir.IRObject{"field": ir.IRString("owner")})

	_, err := req(ir.IRObject{"owner": ir.IRString("ada")}, ir.Event{})
	assert.NoError(t, err)

	_, err = req(ir.IRObject{}, ir.Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"owner"`)
}

func TestBuiltinFail(t *testing.T) {
	fail := build(t, "fail", ir.IRObject{"message": ir.IRString("door is locked")})
	_, err := fail(ir.IRObject{}, ir.Event{})
	assert.EqualError(t, err, "door is locked")

	def := build(t, "fail", nil)
	_, err = def(ir.IRObject{}, ir.Event{})
	assert.EqualError(t, err, "transition refused")
}

func TestBuiltinArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		do   string
		args ir.IRObject
		want string
	}{
		{"missing field", "inc", nil, `missing argument "field"`},
		{"empty field", "set", ir.IRObject{"field": ir.IRString(""), "value": ir.IRInt(1)}, `argument "field" must be a non-empty string`},
		{"non-int by", "inc", ir.IRObject{"field": ir.IRString("n"), "by": ir.IRBool(true)}, `argument "by" must be an int`},
		{"missing value", "append", ir.IRObject{"field": ir.IRString("xs")}, `missing argument "value"`},
		{"typo", "unset", ir.IRObject{"field": ir.IRString("x"), "feild": ir.IRString("x")}, `unexpected argument "feild"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Build(ir.ActionSpec{Do: tt.do, Args: tt.args})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), `action "`+tt.do+`"`)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"append", "copy", "fail", "inc", "require", "set", "unset"}, reg.Names())

	noop := func(ir.IRObject) (fsmAction, error) {
		return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) { return c, nil }, nil
	}
	require.NoError(t, reg.Register("noop", noop))
	assert.True(t, reg.Has("noop"))

	assert.Error(t, reg.Register("noop", noop), "duplicate")
	assert.Error(t, reg.Register("inc", noop), "built-ins cannot be replaced")
	assert.Error(t, reg.Register("", noop))
	assert.Error(t, reg.Register("nil", nil))

	assert.False(t, NewRegistry().Has("noop"), "registries are independent")

	_, err := reg.Build(ir.ActionSpec{Do: "missing"})
	assert.EqualError(t, err, `unknown action "missing"`)
}
