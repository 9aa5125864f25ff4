package core_test

import (
	"context"
	"testing"

	"github.com/ChallaYogeswar/agentforge/core"
)

type fakeHandler struct {
	id string
}

func (f *fakeHandler) ID() string          { return f.id }
func (f *fakeHandler) Description() string { return f.id + " description" }
func (f *fakeHandler) Handle(_ context.Context, _ *core.Request, _ *core.ContextBundle) (*core.Response, *core.MemoryDelta, error) {
	return &core.Response{Text: "ok", HandlerID: f.id}, nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := core.NewRegistry()

	if err := reg.Register(&fakeHandler{id: "email"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, ok := reg.Get("email")
	if !ok || h.ID() != "email" {
		t.Errorf("registered handler not found")
	}
	if reg.Known("other") {
		t.Error("unregistered id should not be known")
	}
}

func TestRegistry_RejectsDuplicatesAndEmptyIDs(t *testing.T) {
	reg := core.NewRegistry()

	if err := reg.Register(&fakeHandler{id: "email"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&fakeHandler{id: "email"}); err == nil {
		t.Error("duplicate id should be rejected")
	}
	if err := reg.Register(&fakeHandler{id: ""}); err == nil {
		t.Error("empty id should be rejected")
	}
}

func TestRegistry_Default(t *testing.T) {
	reg := core.NewRegistry()

	if reg.Default() != nil {
		t.Error("fresh registry should have no default")
	}
	if err := reg.SetDefault("missing"); err == nil {
		t.Error("default must already be registered")
	}

	if err := reg.Register(&fakeHandler{id: "general"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetDefault("general"); err != nil {
		t.Fatal(err)
	}
	if d := reg.Default(); d == nil || d.ID() != "general" {
		t.Errorf("unexpected default: %v", d)
	}
}

func TestRegistry_CatalogLexicalOrder(t *testing.T) {
	reg := core.NewRegistry()
	for _, id := range []string{"prompt", "content", "email"} {
		if err := reg.Register(&fakeHandler{id: id}); err != nil {
			t.Fatal(err)
		}
	}

	catalog := reg.Catalog()
	want := []string{"content", "email", "prompt"}
	if len(catalog) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(catalog))
	}
	for i, entry := range catalog {
		if entry.ID != want[i] {
			t.Errorf("catalog[%d] = %q, want %q", i, entry.ID, want[i])
		}
		if entry.Description == "" {
			t.Errorf("catalog entry %q missing description", entry.ID)
		}
	}
}
