package view

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownView = errors.New("view: unknown view")

// Set is a fixed collection of views keyed by name.
type Set struct {
	views map[string]*View
	names []string
}

func NewSet(views ...*View) (*Set, error) {
	s := &Set{views: make(map[string]*View, len(views))}
	for _, v := range views {
		if _, dup := s.views[v.Name()]; dup {
			return nil, fmt.Errorf("view: duplicate view %q", v.Name())
		}
		s.views[v.Name()] = v
		s.names = append(s.names, v.Name())
	}
	sort.Strings(s.names)
	return s, nil
}

func (s *Set) Get(name string) (*View, error) {
	v, ok := s.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return v, nil
}

// Names returns the view names in sorted order.
func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// MaterializeAll materializes the named views one after another, or every
// view when names is empty. A failing view does not stop the others; the
// errors are joined. Counts hold the documents written per successful view.
func (s *Set) MaterializeAll(ctx context.Context, names ...string) (map[string]int, error) {
	if len(names) == 0 {
		names = s.names
	}
	counts := make(map[string]int, len(names))
	var errs []error
	for _, name := range names {
		v, err := s.Get(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := v.MaterializeAll(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts[name] = n
	}
	return counts, errors.Join(errs...)
}

// RecomputeFor recomputes, in every view whose graph reaches typ, the
// documents embedding the document of typ with the given id.
func (s *Set) RecomputeFor(ctx context.Context, typ string, id any) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error
	for _, name := range s.names {
		v := s.views[name]
		if !v.Plan().Keys.Has(typ) {
			continue
		}
		n, err := v.RecomputeFor(ctx, typ, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts[name] = n
	}
	return counts, errors.Join(errs...)
}
