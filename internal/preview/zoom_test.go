package preview

import "testing"

func TestZoom(t *testing.T) {
	z := DefaultZoom
	for i := 0; i < 10; i++ {
		z = z.In()
	}
	if z != MaxZoom {
		t.Errorf("expected zoom clamped to %d, got %d", MaxZoom, z)
	}

	for i := 0; i < 10; i++ {
		z = z.Out()
	}
	if z != MinZoom {
		t.Errorf("expected zoom clamped to %d, got %d", MinZoom, z)
	}

	z, err := z.Apply(ZoomIn)
	if err != nil || z != 75 {
		t.Errorf("expected 75, got %d (%v)", z, err)
	}
	z, err = z.Apply(ZoomReset)
	if err != nil || z != DefaultZoom {
		t.Errorf("expected reset to %d, got %d", DefaultZoom, z)
	}
	if _, err := z.Apply("sideways"); err == nil {
		t.Error("expected error for unknown action")
	}
}
