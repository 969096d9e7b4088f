package models

// ScrollRange is a closed pixel interval [Min, Max] for a single scroll
type ScrollRange struct {
	Name string
	Min  int
	Max  int
}

// Named scroll presets
const (
	ScrollPatternReader     = "reader"
	ScrollPatternSkimmer    = "skimmer"
	ScrollPatternResearcher = "researcher"
	ScrollPatternBouncer    = "bouncer"
)

var scrollPresets = map[string]ScrollRange{
	ScrollPatternSkimmer:    {Name: ScrollPatternSkimmer, Min: 500, Max: 1500},   // fast and far
	ScrollPatternResearcher: {Name: ScrollPatternResearcher, Min: 100, Max: 400}, // slow and careful
	ScrollPatternBouncer:    {Name: ScrollPatternBouncer, Min: 800, Max: 2000},   // fast, leaves early
	ScrollPatternReader:     {Name: ScrollPatternReader, Min: 200, Max: 800},
}

// DefaultScrollRange is the reader preset
func DefaultScrollRange() ScrollRange {
	return scrollPresets[ScrollPatternReader]
}

// ScrollRangeFor returns the preset for name, falling back to reader
func ScrollRangeFor(name string) ScrollRange {
	if r, ok := scrollPresets[name]; ok {
		return r
	}
	return DefaultScrollRange()
}

// Contains reports whether px lies inside the closed interval
func (r ScrollRange) Contains(px int) bool {
	return px >= r.Min && px <= r.Max
}
