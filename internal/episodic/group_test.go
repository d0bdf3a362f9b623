package episodic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/layeredmemory/engine/internal/store"
)

func msgAt(id string, t time.Time) store.Row {
	return store.Row{ID: id, CreatedAt: t}
}

func TestGroupMessagesClosesOnIdleGap(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	msgs := []store.Row{
		msgAt("1", base),
		msgAt("2", base.Add(time.Minute)),
		msgAt("3", base.Add(10 * time.Minute)), // > 2 minute idle gap from msg 2
	}
	policy := windowPolicy{window: 6 * time.Hour, idleGap: 2 * time.Minute, cap: 50}
	now := base.Add(20 * time.Minute)

	groups := groupMessages(msgs, policy, now)
	assert.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestGroupMessagesClosesOnCap(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	var msgs []store.Row
	for i := 0; i < 5; i++ {
		msgs = append(msgs, msgAt(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)))
	}
	policy := windowPolicy{window: 6 * time.Hour, idleGap: 2 * time.Minute, cap: 2}
	now := base.Add(time.Hour)

	groups := groupMessages(msgs, policy, now)
	assert.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 2)
	assert.Len(t, groups[2], 1)
}

func TestGroupMessagesLeavesTrailingOpenGroupUnclosed(t *testing.T) {
	base := time.Now()
	msgs := []store.Row{msgAt("1", base)}
	policy := windowPolicy{window: 6 * time.Hour, idleGap: 2 * time.Minute, cap: 50}
	now := base.Add(30 * time.Second) // neither idle gap nor window elapsed yet

	groups := groupMessages(msgs, policy, now)
	assert.Empty(t, groups)
}

func TestGroupMessagesClosesTrailingGroupAfterIdleGapElapses(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	msgs := []store.Row{msgAt("1", base)}
	policy := windowPolicy{window: 6 * time.Hour, idleGap: 2 * time.Minute, cap: 50}
	now := base.Add(5 * time.Minute)

	groups := groupMessages(msgs, policy, now)
	assert.Len(t, groups, 1)
}

func TestGroupMessagesAllowsSingleMessageGroup(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	msgs := []store.Row{
		msgAt("1", base),
		msgAt("2", base.Add(10 * time.Minute)),
	}
	policy := windowPolicy{window: 6 * time.Hour, idleGap: 2 * time.Minute, cap: 50}
	now := base.Add(10 * time.Minute)

	groups := groupMessages(msgs, policy, now)
	require := assert.New(t)
	require.Len(groups, 1)
	require.Len(groups[0], 1)
}
