package bank

import (
	"reflect"
	"testing"

	"github.com/toanlab/lms-backend/internal/model"
)

func samplePool() *Pool {
	return NewPool([]model.Question{
		{ID: "Q1", Grade: 10, Topic: "Hàm số", Level: model.LevelApplication},
		{ID: "Q2", Grade: 10, Topic: "Hàm số", Level: model.LevelApplication},
		{ID: "Q3", Grade: 10, Topic: "Phương trình", Level: model.LevelRecall},
		{ID: "Q4", Grade: 12, Topic: "Hình học không gian", Level: model.LevelHighApplication},
		{ID: "Q1", Grade: 11, Topic: "duplicate", Level: model.LevelRecall},
	})
}

func TestPoolMatch(t *testing.T) {
	p := samplePool()

	got := p.Match(10, "Hàm số", model.LevelApplication)
	if len(got) != 2 || got[0].ID != "Q1" || got[1].ID != "Q2" {
		t.Fatalf("unexpected match %+v", got)
	}
	if n := p.Count(10, "Hàm số", model.LevelRecall); n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
	if p.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (duplicate id ignored)", p.Len())
	}
}

func TestPoolMatchReturnsCopy(t *testing.T) {
	p := samplePool()
	got := p.Match(10, "Hàm số", model.LevelApplication)
	got[0].ID = "mutated"

	again := p.Match(10, "Hàm số", model.LevelApplication)
	if again[0].ID != "Q1" {
		t.Fatal("Match leaked internal storage")
	}
}

func TestPoolTopics(t *testing.T) {
	p := samplePool()
	want := []string{"Hàm số", "Phương trình"}
	if got := p.Topics(10); !reflect.DeepEqual(got, want) {
		t.Fatalf("Topics(10) = %v, want %v", got, want)
	}
	if got := p.Topics(9); len(got) != 0 {
		t.Fatalf("Topics(9) = %v, want empty", got)
	}
}

func TestPoolLookup(t *testing.T) {
	p := samplePool()
	found, missing := p.Lookup([]string{"Q3", "nope", "Q1"})
	if len(found) != 2 || found[0].ID != "Q3" || found[1].ID != "Q1" {
		t.Fatalf("unexpected found %+v", found)
	}
	if !reflect.DeepEqual(missing, []string{"nope"}) {
		t.Fatalf("missing = %v", missing)
	}
}
