// Package led mirrors the camera state on a board status LED.
package led

// Pattern is what the LED shows.
type Pattern string

const (
	Off   Pattern = "off"
	Solid Pattern = "solid"
	Blink Pattern = "blink"
)

// Controller drives one LED.
type Controller interface {
	Set(p Pattern) error
	// Name identifies the LED, e.g. the sysfs directory.
	Name() string
}
