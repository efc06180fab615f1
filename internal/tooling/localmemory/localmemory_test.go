package localmemory

import (
	"context"
	"testing"
)

func TestAddThenRemove(t *testing.T) {
	tool := Tool{}
	_, data, err := tool.Invoke(context.Background(), "add", "name\nProxima", Empty())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	mem := data.(Data)
	if mem.Values["name"] != "Proxima" {
		t.Fatalf("want name=Proxima, got %+v", mem.Values)
	}

	_, data, err = tool.Invoke(context.Background(), "remove", "name", mem)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := data.(Data).Values["name"]; ok {
		t.Fatal("expected key to be removed")
	}
}

func TestAddRejectsMissingValue(t *testing.T) {
	tool := Tool{}
	if _, _, err := tool.Invoke(context.Background(), "add", "key-only", Empty()); err == nil {
		t.Fatal("expected an error when no value line is present")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Empty()
	orig.Values["a"] = "1"
	clone := orig.Clone().(Data)
	clone.Values["a"] = "2"
	if orig.Values["a"] != "1" {
		t.Fatal("mutating the clone must not affect the original")
	}
}
