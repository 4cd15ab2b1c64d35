package node

import "fmt"

// Priority is the small ordinal a node is registered with. Critical runs
// first within a tick; Background runs last. The numeric values are the
// same ordinals the FFI boundary carries across the C ABI (0..4).
type Priority uint8

const (
	Critical Priority = iota
	High
	Normal
	Low
	Background
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// ParsePriority accepts the lowercase names used in the YAML run manifest.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "critical":
		return Critical, nil
	case "high":
		return High, nil
	case "normal":
		return Normal, nil
	case "low":
		return Low, nil
	case "background":
		return Background, nil
	default:
		return 0, fmt.Errorf("horus: unknown priority %q", s)
	}
}
