package filters

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Registry used to lookup Spec objects while initializing routes.
type Registry map[string]Spec

// Register a filter specification.
func (r Registry) Register(s Spec) {
	name := s.Name()
	if _, ok := r[name]; ok {
		log.Infof("Replacing %s filter specification", name)
	}

	r[name] = s
}

// Create looks up the specification by name and creates a filter
// instance with the provided arguments.
func (r Registry) Create(name string, args ...interface{}) (Filter, error) {
	s, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("filter not found: %q", name)
	}

	return s.CreateFilter(args)
}
