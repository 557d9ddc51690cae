package model_test

import (
	"testing"

	"github.com/flowkit/go-optfetch/model"
	"github.com/stretchr/testify/require"
)

func TestOptionsJSON(t *testing.T) {
	data := []byte(`[
  {"key": "C01", "label": "#general", "attrs": {"private": false, "members": 42}},
  {"key": "C02", "label": "#random"}
]`)
	opts, err := model.UnmarshalOptions(data)
	require.NoError(t, err)
	require.Len(t, opts, 2)
	require.Equal(t, "C01", opts[0].Key)
	require.Equal(t, "#random", opts[1].Label)
	require.Equal(t, float64(42), opts[0].Attrs["members"])
	require.Nil(t, opts[1].Attrs)

	_, err = model.UnmarshalOptions([]byte(`{"key": "C01"}`))
	require.Error(t, err)
}

func TestMarshalEmptyOptions(t *testing.T) {
	data, err := model.MarshalOptions(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))

	opts, err := model.UnmarshalOptions(data)
	require.NoError(t, err)
	require.NotNil(t, opts)
	require.Empty(t, opts)
}
