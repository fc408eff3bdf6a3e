package inspector

import (
	"fmt"
	"slices"
)

// Breakpoint is a resolved breakpoint. Line and Column are the requested
// position; Location is where it actually resolved.
type Breakpoint struct {
	ID        string
	ScriptID  string
	Line      int
	Column    int
	Condition string
	Location  Location

	site int
}

// BreakpointStore holds the breakpoints of one session. It is owned by the
// session's execution goroutine and is not safe for concurrent use.
type BreakpointStore struct {
	active bool
	seq    int
	byID   map[string]*Breakpoint
	bySite map[int][]*Breakpoint
}

func NewBreakpointStore() *BreakpointStore {
	return &BreakpointStore{
		active: true,
		byID:   make(map[string]*Breakpoint),
		bySite: make(map[int][]*Breakpoint),
	}
}

// Add registers a breakpoint resolved to site. The id has the form
// "<scriptId>:<lineNumber>:<columnNumber>:<sequence>".
func (s *BreakpointStore) Add(scriptID string, line, column int, condition string, site int, actual Location) *Breakpoint {
	s.seq++
	bp := &Breakpoint{
		ID:        fmt.Sprintf("%s:%d:%d:%d", scriptID, line, column, s.seq),
		ScriptID:  scriptID,
		Line:      line,
		Column:    column,
		Condition: condition,
		Location:  actual,
		site:      site,
	}
	s.byID[bp.ID] = bp
	s.bySite[site] = append(s.bySite[site], bp)
	return bp
}

// Remove deletes the breakpoint with the given id, reporting whether it
// existed.
func (s *BreakpointStore) Remove(id string) bool {
	bp, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	list := slices.DeleteFunc(s.bySite[bp.site], func(b *Breakpoint) bool { return b == bp })
	if len(list) == 0 {
		delete(s.bySite, bp.site)
	} else {
		s.bySite[bp.site] = list
	}
	return true
}

// Get returns the breakpoint with the given id.
func (s *BreakpointStore) Get(id string) (*Breakpoint, bool) {
	bp, ok := s.byID[id]
	return bp, ok
}

// At returns the breakpoints resolved to site, in creation order, or nil
// while the store is inactive.
func (s *BreakpointStore) At(site int) []*Breakpoint {
	if !s.active {
		return nil
	}
	return s.bySite[site]
}

// SetActive toggles every breakpoint at once without removing any.
func (s *BreakpointStore) SetActive(active bool) { s.active = active }

func (s *BreakpointStore) Active() bool { return s.active }

func (s *BreakpointStore) Len() int { return len(s.byID) }

// Clear removes every breakpoint. The id sequence is not reset.
func (s *BreakpointStore) Clear() {
	clear(s.byID)
	clear(s.bySite)
}
