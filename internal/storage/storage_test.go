package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.GetSetting("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.PutSetting("slot", "value-1"))
	v, ok, err := db.GetSetting("slot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value-1", v)

	// 覆盖写
	require.NoError(t, db.PutSetting("slot", "value-2"))
	v, _, err = db.GetSetting("slot")
	require.NoError(t, err)
	assert.Equal(t, "value-2", v)

	require.NoError(t, db.DeleteSetting("slot"))
	_, ok, err = db.GetSetting("slot")
	require.NoError(t, err)
	assert.False(t, ok)

	// 删除不存在的项不报错
	require.NoError(t, db.DeleteSetting("slot"))
}

func TestRunRecords(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.RecordRun(RunRecord{ID: "run-1", Topic: "시간 관리", SlideCount: 3, FinalState: "completed"}))
	require.NoError(t, db.RecordRun(RunRecord{ID: "run-2", Topic: "topic", SlideCount: 5, FinalState: "idle", Error: "image for segment 2: model overloaded"}))

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]RunRecord{}
	for _, r := range runs {
		byID[r.ID] = r
		assert.False(t, r.CreatedAt.IsZero())
	}
	assert.Equal(t, "completed", byID["run-1"].FinalState)
	assert.Equal(t, "image for segment 2: model overloaded", byID["run-2"].Error)

	// 同一运行的记录可以被终态覆盖
	require.NoError(t, db.RecordRun(RunRecord{ID: "run-2", Topic: "topic", SlideCount: 5, FinalState: "completed"}))
	runs, err = db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestRecentRunsLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordRun(RunRecord{ID: string(rune('a' + i)), Topic: "t", SlideCount: 1, FinalState: "completed"}))
	}
	runs, err := db.RecentRuns(3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
