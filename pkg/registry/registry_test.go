package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[testItem]()

	tests := []struct {
		name    string
		item    testItem
		wantErr bool
	}{
		{name: "register valid item", item: testItem{ID: "skill-1", Name: "elevate_house"}, wantErr: false},
		{name: "register item with empty name", item: testItem{ID: "", Name: "no id"}, wantErr: true},
		{name: "register duplicate item", item: testItem{ID: "skill-1", Name: "duplicate"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.item.ID, tt.item)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	item := testItem{ID: "skill-1", Name: "elevate_house"}
	require.NoError(t, reg.Register("skill-1", item))

	got, ok := reg.Get("skill-1")
	assert.True(t, ok)
	assert.Equal(t, item, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestBaseRegistry_ListAndNamesDeterministic(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	items := []testItem{
		{ID: "c", Name: "three"},
		{ID: "a", Name: "one"},
		{ID: "b", Name: "two"},
	}
	for _, item := range items {
		require.NoError(t, reg.Register(item.ID, item))
	}

	names := reg.Names()
	assert.Equal(t, []string{"a", "b", "c"}, names)

	// List() follows the same deterministic order as Names().
	list := reg.List()
	require.Len(t, list, 3)
	for i, n := range names {
		assert.Equal(t, n, list[i].ID)
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	require.NoError(t, reg.Register("skill-1", testItem{ID: "skill-1"}))

	require.NoError(t, reg.Remove("skill-1"))
	_, ok := reg.Get("skill-1")
	assert.False(t, ok)

	assert.Error(t, reg.Remove("skill-1"))
}

func TestBaseRegistry_Count(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	assert.Equal(t, 0, reg.Count())

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("skill-%d", i)
		require.NoError(t, reg.Register(id, testItem{ID: id}))
		assert.Equal(t, i+1, reg.Count())
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	require.NoError(t, reg.Register("skill-1", testItem{ID: "skill-1"}))
	require.NoError(t, reg.Register("skill-2", testItem{ID: "skill-2"}))

	reg.Clear()
	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.List())
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := NewBaseRegistry[testItem]()
	done := make(chan bool, 2)

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			id := fmt.Sprintf("concurrent-%d", i)
			_ = reg.Register(id, testItem{ID: id})
		}
	}()

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("concurrent-%d", i))
			reg.Count()
			reg.List()
		}
	}()

	<-done
	<-done

	assert.Equal(t, 100, reg.Count())
}
