package buffer

import (
	"sync"
	"testing"

	"github.com/mjasion/balena-home/pkg/types"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	buf := New[*types.Reading](10, zap.NewNop())

	if buf.Capacity() != 10 {
		t.Errorf("Expected capacity 10, got %d", buf.Capacity())
	}
	if buf.Size() != 0 {
		t.Errorf("Expected size 0, got %d", buf.Size())
	}
}

func TestNew_NonPositiveCapacity(t *testing.T) {
	buf := New[int](0, zap.NewNop())
	if buf.Capacity() != 1 {
		t.Errorf("Expected capacity clamped to 1, got %d", buf.Capacity())
	}

	buf.Add(1)
	buf.Add(2)
	items := buf.GetAllAndClear()
	if len(items) != 1 || items[0] != 2 {
		t.Errorf("Expected [2], got %v", items)
	}
}

func TestAdd_OverflowKeepsNewest(t *testing.T) {
	buf := New[int](3, zap.NewNop())

	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	if buf.Size() != 3 {
		t.Errorf("Expected size 3, got %d", buf.Size())
	}
	if buf.Overwritten() != 2 {
		t.Errorf("Expected 2 overwritten, got %d", buf.Overwritten())
	}

	items := buf.GetAllAndClear()
	expected := []int{3, 4, 5}
	if len(items) != len(expected) {
		t.Fatalf("Expected %d items, got %d", len(expected), len(items))
	}
	for i, item := range items {
		if item != expected[i] {
			t.Errorf("Expected item[%d]=%d, got %d", i, expected[i], item)
		}
	}
}

func TestAddAll_PreservesOrder(t *testing.T) {
	buf := New[*types.Reading](5, zap.NewNop())

	readings := []*types.Reading{
		{ObjectName: "battery", Value: 97},
		{ObjectName: "temperature", Value: 25.06},
		{ObjectName: "humidity", Value: 50.55},
	}
	buf.AddAll(readings)

	items := buf.GetAllAndClear()
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, r := range items {
		if r != readings[i] {
			t.Errorf("Expected item[%d] to be %s, got %s", i, readings[i].ObjectName, r.ObjectName)
		}
	}
}

func TestGetAllAndClear_Empty(t *testing.T) {
	buf := New[int](5, zap.NewNop())
	if items := buf.GetAllAndClear(); items != nil {
		t.Errorf("Expected nil for empty buffer, got %v", items)
	}
}

func TestGetAllAndClear_ReuseAfterWrap(t *testing.T) {
	buf := New[int](3, zap.NewNop())
	for i := 1; i <= 4; i++ {
		buf.Add(i)
	}
	_ = buf.GetAllAndClear()

	buf.Add(10)
	buf.Add(11)
	items := buf.GetAllAndClear()
	if len(items) != 2 || items[0] != 10 || items[1] != 11 {
		t.Errorf("Expected [10 11], got %v", items)
	}
}

func TestConcurrentAccess(t *testing.T) {
	buf := New[int](100, zap.NewNop())
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				buf.Add(val*10 + j)
			}
		}(i)
	}

	wg.Wait()

	if size := buf.Size(); size != 100 {
		t.Errorf("Expected size 100, got %d", size)
	}
	if items := buf.GetAllAndClear(); len(items) != 100 {
		t.Errorf("Expected 100 items, got %d", len(items))
	}
	if buf.Overwritten() != 0 {
		t.Errorf("Expected no overwrites, got %d", buf.Overwritten())
	}
}
