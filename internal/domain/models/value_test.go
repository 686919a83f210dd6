package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_RoundTrip(t *testing.T) {
	src := `{
		"big": 12345678901234567890123,
		"float": 0.1000000000000000055511151231257827,
		"flag": true,
		"none": null,
		"name": "café",
		"list": [1, "two", false, null, {"deep": [[]]}],
		"obj": {}
	}`

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(src), &p))

	big, ok := p["big"].AsNumber()
	require.True(t, ok)
	assert.Equal(t, json.Number("12345678901234567890123"), big)

	assert.True(t, p["none"].IsNull())
	assert.Equal(t, KindArray, p["list"].Kind())
	assert.Equal(t, KindObject, p["obj"].Kind())

	name, ok := p["name"].AsString()
	require.True(t, ok)
	assert.Equal(t, "café", name)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))

	var again Payload
	require.NoError(t, json.Unmarshal(out, &again))
	assert.True(t, p.Equal(again))
}

func TestValue_Constructors(t *testing.T) {
	v := Object(map[string]Value{
		"a": Array(Number("1"), Bool(true), Null()),
		"b": String("x"),
	})

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,true,null],"b":"x"}`, string(data))

	assert.Equal(t, "null", Null().Kind().String())
	assert.Equal(t, "[]", mustMarshal(t, Array()))
	assert.Equal(t, "{}", mustMarshal(t, Object(nil)))
}

func TestValue_InvalidNumber(t *testing.T) {
	_, err := json.Marshal(Number("1.2.3"))
	require.Error(t, err)
}

func TestPayload_Equal(t *testing.T) {
	var absent Payload
	empty := Payload{}

	assert.False(t, absent.Equal(empty))
	assert.True(t, absent.Equal(nil))
	assert.True(t, Payload{"a": Number("1")}.Equal(Payload{"a": Number("1")}))
	assert.False(t, Payload{"a": Number("1")}.Equal(Payload{"a": Number("1.0")}))
	assert.False(t, Payload{"a": String("1")}.Equal(Payload{"a": Number("1")}))
}

func mustMarshal(t *testing.T, v Value) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
