package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

func TestParseFlag(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{true, "1", true},
		{false, "0", true},
		{"1", "1", true},
		{"0", "0", true},
		{"true", "1", true},
		{"FALSE", "0", true},
		{" True ", "1", true},
		{float64(1), "1", true}, // JSON 数字
		{float64(0), "0", true},
		{float64(2), "", false},
		{"yes", "", false},
		{"", "", false},
		{nil, "", false},
		{[]string{"1"}, "", false},
	}
	for _, tc := range cases {
		got, ok := domain.ParseFlag(tc.in)
		assert.Equal(t, tc.ok, ok, "input %v", tc.in)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}
}

func TestNormalizeStateInput(t *testing.T) {
	// ready 与 state 键分流
	state, ready, err := domain.NormalizeStateInput(map[string]interface{}{
		"mic":   true,
		"ready": "1",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mic": "1"}, state)
	assert.Equal(t, "1", ready)

	// 未知键整体拒绝
	_, _, err = domain.NormalizeStateInput(map[string]interface{}{"volume": true})
	require.Error(t, err)

	// screen 不是 state 键
	_, _, err = domain.NormalizeStateInput(map[string]interface{}{"screen": true})
	require.Error(t, err)

	// 非法取值整体拒绝
	_, _, err = domain.NormalizeStateInput(map[string]interface{}{"mic": "loud"})
	require.Error(t, err)
}

func TestNormalizeBlockInput(t *testing.T) {
	out, err := domain.NormalizeBlockInput(map[string]interface{}{
		"cam":    false,
		"screen": true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cam": "0", "screen": "1"}, out)

	// ready 不可被封禁
	_, err = domain.NormalizeBlockInput(map[string]interface{}{"ready": true})
	require.Error(t, err)
}

func TestDefaultState(t *testing.T) {
	state := domain.DefaultState()
	assert.Len(t, state, len(domain.StateKeys))
	for _, k := range domain.StateKeys {
		assert.Equal(t, "0", state[k])
	}
}
