package preview

import "fmt"

// Zoom is the viewer zoom factor in percent.
type Zoom int

const (
	MinZoom     Zoom = 50
	MaxZoom     Zoom = 200
	DefaultZoom Zoom = 100
	ZoomStep    Zoom = 25
)

// Zoom actions
const (
	ZoomIn    = "in"
	ZoomOut   = "out"
	ZoomReset = "reset"
)

func (z Zoom) In() Zoom {
	return clampZoom(z + ZoomStep)
}

func (z Zoom) Out() Zoom {
	return clampZoom(z - ZoomStep)
}

// Apply performs a named zoom action.
func (z Zoom) Apply(action string) (Zoom, error) {
	switch action {
	case ZoomIn:
		return z.In(), nil
	case ZoomOut:
		return z.Out(), nil
	case ZoomReset:
		return DefaultZoom, nil
	default:
		return z, fmt.Errorf("unknown zoom action %q", action)
	}
}

func clampZoom(z Zoom) Zoom {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
