package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

func TestSecondsByUser_ValueScan(t *testing.T) {
	src := domain.SecondsByUser{1: 300, 42: 15}

	val, err := src.Value()
	require.NoError(t, err)

	var dst domain.SecondsByUser
	require.NoError(t, dst.Scan(val))
	assert.Equal(t, src, dst)

	// NULL 列扫描为空映射
	var fromNil domain.SecondsByUser
	require.NoError(t, fromNil.Scan(nil))
	assert.Empty(t, fromNil)

	// nil 映射序列化为空对象而不是 SQL NULL
	var nilMap domain.SecondsByUser
	val, err = nilMap.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", val)
}

func TestSecondsByUser_Merge_HotValueWins(t *testing.T) {
	stored := domain.SecondsByUser{1: 100, 2: 50}
	hot := domain.SecondsByUser{2: 80, 3: 10}

	stored.Merge(hot)

	assert.Equal(t, domain.SecondsByUser{1: 100, 2: 80, 3: 10}, stored)
}

func TestRoom_Brief(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	room := domain.Room{
		ID:          11,
		Title:       "夜车",
		UserLimit:   8,
		Privacy:     domain.PrivacyOpen,
		CreatorID:   5,
		CreatorName: "nika",
		CreatedAt:   created,
	}

	brief := room.Brief(3)

	assert.Equal(t, uint(11), brief.ID)
	assert.Equal(t, created.Unix(), brief.CreatedAt)
	assert.Equal(t, 3, brief.Occupancy)
	assert.Equal(t, uint(5), brief.Creator)
}
