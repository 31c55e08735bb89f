package rhi

// SurfaceState is the part of the default surface state that a render
// target bind leaves to the caller: viewport and clear color.
type SurfaceState struct {
	Viewport   Viewport
	ClearColor ColorRGBA
}

// SaveSurfaceState captures the current viewport and clear color of rc.
func SaveSurfaceState(rc RenderContext) SurfaceState {
	return SurfaceState{
		Viewport:   rc.Viewport(),
		ClearColor: rc.ClearColor(),
	}
}

// Restore sets the captured viewport and clear color on rc.
func (s SurfaceState) Restore(rc RenderContext) {
	rc.SetViewport(s.Viewport)
	rc.SetClearColor(s.ClearColor)
}
