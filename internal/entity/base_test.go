package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_SnapshotSequenceIsMonotonic(t *testing.T) {
	b := NewBase[struct{}]("lot", nil)

	first := b.NewSnapshot(map[string]int{"a": 1})
	second := b.NewSnapshot(map[string]int{"a": 2})

	assert.Equal(t, "lot", first.Name)
	assert.Equal(t, b.ID(), first.ID)
	assert.Equal(t, uint64(1), first.Type)
	assert.Equal(t, uint64(2), second.Type)
	assert.Equal(t, map[string]int{"a": 2}, second.Data)
}

func TestBase_IDsAreUnique(t *testing.T) {
	a := NewBase[int]("order", nil)
	b := NewBase[int]("order", nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Len(t, a.ID(), 36)
}

func TestBase_PublishSubscribe(t *testing.T) {
	b := NewBaseWithID[string]("order", "fixed", nil)
	var got []string
	id := b.On(TopicUpdated, func(s string) { got = append(got, s) })

	b.Publish(TopicUpdated, "created")
	require.NoError(t, b.Off(TopicUpdated, id))
	b.Publish(TopicUpdated, "filled")

	assert.Equal(t, []string{"created"}, got)
	assert.Equal(t, "fixed", b.ID())
}

func TestBase_Fields(t *testing.T) {
	b := NewBaseWithID[int]("lot", "l1", nil)
	f := b.Fields(map[string]interface{}{"size": 1.5})
	assert.Equal(t, map[string]interface{}{"entity": "lot", "id": "l1", "size": 1.5}, f)
}
