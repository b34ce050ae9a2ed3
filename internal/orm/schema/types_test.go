package schema

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"bool":      TypeBool,
		"Boolean":   TypeBool,
		"int":       TypeInt,
		"integer":   TypeInt,
		"float":     TypeFloat,
		"string":    TypeString,
		"date":      TypeDate,
		"datetime":  TypeDateTime,
		"timestamp": TypeDateTime,
		"time":      TypeTime,
		"json":      TypeJSON,
	}
	for name, want := range tests {
		got, err := ParseType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseType("money")
	assert.Error(t, err)
}

func TestCast(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		input   interface{}
		want    interface{}
		wantErr bool
	}{
		{name: "nil passes through", typ: TypeInt, input: nil, want: nil},
		{name: "int widening", typ: TypeInt, input: int32(7), want: int64(7)},
		{name: "int from string", typ: TypeInt, input: " 12 ", want: int64(12)},
		{name: "int from whole float", typ: TypeInt, input: 3.0, want: int64(3)},
		{name: "int from fractional float", typ: TypeInt, input: 3.5, wantErr: true},
		{name: "int from float beyond range", typ: TypeInt, input: 1e19, wantErr: true},
		{name: "int from float at 2^63", typ: TypeInt, input: float64(math.MaxInt64), wantErr: true},
		{name: "int from negative float beyond range", typ: TypeInt, input: -1e19, wantErr: true},
		{name: "int from infinity", typ: TypeInt, input: math.Inf(1), wantErr: true},
		{name: "int from not-a-number", typ: TypeInt, input: math.NaN(), wantErr: true},
		{name: "int from float at the minimum", typ: TypeInt, input: float64(math.MinInt64), want: int64(math.MinInt64)},
		{name: "float from int", typ: TypeFloat, input: 2, want: 2.0},
		{name: "float from string", typ: TypeFloat, input: "1.25", want: 1.25},
		{name: "bool from string", typ: TypeBool, input: "true", want: true},
		{name: "bool from int", typ: TypeBool, input: int64(0), want: false},
		{name: "bool from garbage", typ: TypeBool, input: "maybe", wantErr: true},
		{name: "string from int", typ: TypeString, input: 5, want: "5"},
		{name: "string from slice", typ: TypeString, input: []int{1}, wantErr: true},
		{name: "clock", typ: TypeTime, input: "09:30", want: "09:30:00"},
		{name: "clock from garbage", typ: TypeTime, input: "half past nine", wantErr: true},
		{name: "json value", typ: TypeJSON, input: []interface{}{"read"}, want: []interface{}{"read"}},
		{name: "json numbers decode as float", typ: TypeJSON, input: []interface{}{1, int64(2)}, want: []interface{}{1.0, 2.0}},
		{name: "json structs become maps", typ: TypeJSON, input: struct {
			Words int `json:"words"`
		}{Words: 3}, want: map[string]interface{}{"words": 3.0}},
		{name: "json raw message", typ: TypeJSON, input: json.RawMessage(`{"a":[1]}`), want: map[string]interface{}{"a": []interface{}{1.0}}},
		{name: "json invalid raw message", typ: TypeJSON, input: json.RawMessage(`{`), wantErr: true},
		{name: "json unencodable", typ: TypeJSON, input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cast(tt.typ, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCastTemporal(t *testing.T) {
	t.Run("date drops the clock", func(t *testing.T) {
		got, err := Cast(TypeDate, time.Date(2024, 3, 9, 17, 45, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("date from string", func(t *testing.T) {
		got, err := Cast(TypeDate, "2024-03-09")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("datetime truncates to seconds", func(t *testing.T) {
		got, err := Cast(TypeDateTime, time.Date(2024, 3, 9, 17, 45, 12, 999, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 9, 17, 45, 12, 0, time.UTC), got)
	})

	t.Run("datetime from rfc3339", func(t *testing.T) {
		got, err := Cast(TypeDateTime, "2024-03-09T17:45:12Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 9, 17, 45, 12, 0, time.UTC), got)
	})

	t.Run("datetime from garbage", func(t *testing.T) {
		_, err := Cast(TypeDateTime, "yesterday-ish")
		assert.Error(t, err)
	})
}

func TestDriverConversion(t *testing.T) {
	got, err := FromDB(TypeString, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = FromDB(TypeJSON, []byte(`{"a":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": []interface{}{1.0, 2.0}}, got)

	got, err = FromDB(TypeInt, int64(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)

	out, err := ToDB(TypeJSON, []interface{}{"read", "write"})
	require.NoError(t, err)
	assert.Equal(t, `["read","write"]`, out)

	out, err = ToDB(TypeDate, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", out)

	assert.Equal(t, TypeInt, TypeOf(3))
	assert.Equal(t, TypeDateTime, TypeOf(time.Now()))
	assert.Equal(t, TypeString, TypeOf("x"))
}
