package engine

import (
	"sync"

	"github.com/wesleyorama2/imload/internal/loadtest"
)

// classPicker assigns new users to classes with smooth weighted round-robin,
// so any prefix of picks tracks the class weights as closely as possible.
type classPicker struct {
	mu      sync.Mutex
	classes []loadtest.UserClass
	current []int
	total   int
}

func newClassPicker(classes []loadtest.UserClass) *classPicker {
	p := &classPicker{
		classes: classes,
		current: make([]int, len(classes)),
	}
	for _, c := range classes {
		p.total += c.Weight
	}
	return p
}

func (p *classPicker) next() loadtest.UserClass {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := 0
	for i, c := range p.classes {
		p.current[i] += c.Weight
		if p.current[i] > p.current[best] {
			best = i
		}
	}
	p.current[best] -= p.total
	return p.classes[best]
}
