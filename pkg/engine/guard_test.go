package engine

import (
	"errors"
	"testing"
)

func TestPushOverridesAndRestores(t *testing.T) {
	t.Parallel()

	field := 7
	p := Push(&field, 42)
	if field != 42 {
		t.Fatalf("field after Push: got %d, want 42", field)
	}
	if p.Old() != 7 {
		t.Fatalf("Old: got %d, want 7", p.Old())
	}
	p.Restore()
	if field != 7 {
		t.Fatalf("field after Restore: got %d, want 7", field)
	}
}

func TestPushRestoresOnEarlyErrorReturn(t *testing.T) {
	t.Parallel()

	mode := PointerModeDevice
	failing := func() error {
		defer Push(&mode, PointerModeHost).Restore()
		if mode != PointerModeHost {
			t.Fatalf("mode inside guarded scope: got %v, want host", mode)
		}
		return errors.New("boom")
	}
	if err := failing(); err == nil {
		t.Fatal("expected error")
	}
	if mode != PointerModeDevice {
		t.Fatalf("mode after early return: got %v, want device", mode)
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	t.Parallel()

	field := "a"
	p := Push(&field, "b")
	p.Restore()
	field = "c"
	p.Restore()
	if field != "c" {
		t.Fatalf("second Restore clobbered field: got %q, want %q", field, "c")
	}
}

func TestContextPushHelpers(t *testing.T) {
	t.Parallel()

	ctx, _ := newTestContext(t)
	if ctx.PointerMode != PointerModeHost {
		t.Fatalf("default pointer mode: got %v", ctx.PointerMode)
	}

	func() {
		defer ctx.PushPointerMode(PointerModeDevice).Restore()
		defer ctx.PushAnyOrder(true).Restore()
		if ctx.PointerMode != PointerModeDevice {
			t.Fatal("pointer mode not overridden")
		}
		if !ctx.AnyOrder {
			t.Fatal("any-order flag not overridden")
		}
	}()

	if ctx.PointerMode != PointerModeHost {
		t.Fatal("pointer mode not restored")
	}
	if ctx.AnyOrder {
		t.Fatal("any-order flag not restored")
	}
}

func TestNestedPushRestoresInOrder(t *testing.T) {
	t.Parallel()

	field := 1
	outer := Push(&field, 2)
	inner := Push(&field, 3)
	if field != 3 {
		t.Fatalf("field: got %d, want 3", field)
	}
	inner.Restore()
	if field != 2 {
		t.Fatalf("field after inner restore: got %d, want 2", field)
	}
	outer.Restore()
	if field != 1 {
		t.Fatalf("field after outer restore: got %d, want 1", field)
	}
}
