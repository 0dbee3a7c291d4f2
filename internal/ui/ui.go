// Package ui declares the presentation collaborators the client core talks
// to. Terminal implementations live in internal/cli.
package ui

// Indicator is the busy/progress indicator.
type Indicator interface {
	Show()
	Hide()
}

// Notifier surfaces messages the user must see.
type Notifier interface {
	Alert(msg string)
	// Saved flashes the transient "saved" signal.
	Saved(name string)
}

// Renderer redraws one workspace entry. content is the full current payload.
type Renderer interface {
	RenderEntry(id, title, content string)
}

// Nop implements every interface in this package and does nothing.
type Nop struct{}

func (Nop) Show()                     {}
func (Nop) Hide()                     {}
func (Nop) Alert(string)              {}
func (Nop) Saved(string)              {}
func (Nop) RenderEntry(_, _, _ string) {}
