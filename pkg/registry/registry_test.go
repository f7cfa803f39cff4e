package registry

import (
	"strings"
	"testing"
)

type fakeView struct{ name string }

func TestRegisterGet(t *testing.T) {
	r := New(false, nil)
	r.Register("View", &fakeView{name: "View"})
	r.RegisterMap(map[string]Component{
		"Text":   &fakeView{name: "Text"},
		"Button": &fakeView{name: "Button"},
	})

	if r.Size() != 3 {
		t.Fatalf("Size = %d, want 3", r.Size())
	}
	v, ok := r.Get("View").(*fakeView)
	if !ok || v.name != "View" {
		t.Errorf("Get(View) = %v", r.Get("View"))
	}
	names := r.Names()
	if len(names) != 3 || names[0] != "Button" {
		t.Errorf("Names = %v", names)
	}
}

func TestGetMissCounted(t *testing.T) {
	r := New(false, nil)
	if r.Get("Nope") != nil {
		t.Error("Get(Nope) should be nil")
	}
	r.Get("Nope")
	if got := r.MissCounts()["Nope"]; got != 2 {
		t.Errorf("miss count = %d, want 2", got)
	}
	if r.Has("Nope") {
		t.Error("Has(Nope) should be false")
	}
	if got := r.MissCounts()["Nope"]; got != 2 {
		t.Errorf("Has must not count a miss; got %d", got)
	}
}

func TestResolveDebug(t *testing.T) {
	r := New(true, nil)
	r.Register("View", &fakeView{})
	if _, err := r.Resolve("View"); err != nil {
		t.Fatalf("Resolve(View): %v", err)
	}
	_, err := r.Resolve("Missing")
	if err == nil {
		t.Fatal("Resolve(Missing) should error in debug mode")
	}
	if !strings.Contains(err.Error(), "View") {
		t.Errorf("error should list registered names, got %v", err)
	}
}

func TestResolveNonDebug(t *testing.T) {
	r := New(false, nil)
	c, err := r.Resolve("Missing")
	if c != nil || err != nil {
		t.Errorf("Resolve = %v, %v; want nil, nil", c, err)
	}
}

func TestOverwriteKeepsLatest(t *testing.T) {
	r := New(false, nil)
	r.Register("View", &fakeView{name: "one"})
	r.Register("View", &fakeView{name: "two"})
	if got := r.Get("View").(*fakeView).name; got != "two" {
		t.Errorf("Get = %q, want two", got)
	}
	if r.Size() != 1 {
		t.Errorf("Size = %d, want 1", r.Size())
	}
}
