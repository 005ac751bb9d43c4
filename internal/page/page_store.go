package page

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"
)

// PageStore indexes the controllers of one document by page number.
type PageStore struct {
	controllers map[int]*Controller
	log         logr.Logger
	mu          sync.RWMutex
	onUpdate    func()
}

func NewPageStore(onUpdate func(), log logr.Logger) *PageStore {
	return &PageStore{
		controllers: map[int]*Controller{},
		onUpdate:    onUpdate,
		log:         log,
	}
}

func (s *PageStore) Count() int {
	s.log.V(1).Info("count")
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.controllers)
}

// Delete removes and destroys the controller of pageNum.
func (s *PageStore) Delete(pageNum int) {
	s.log.V(1).Info("delete", "page", pageNum)
	s.mu.Lock()
	c, ok := s.controllers[pageNum]
	delete(s.controllers, pageNum)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.Destroy()
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

func (s *PageStore) Get(pageNum int) (*Controller, bool) {
	s.log.V(1).Info("get", "page", pageNum)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[pageNum]
	return c, ok
}

// List returns the controllers ordered by page number.
func (s *PageStore) List() []*Controller {
	s.log.V(1).Info("list")
	s.mu.RLock()
	defer s.mu.RUnlock()
	controllers := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		controllers = append(controllers, c)
	}
	slices.SortFunc(controllers, func(a, b *Controller) int {
		return a.pageNum - b.pageNum
	})
	return controllers
}

// Set registers c, destroying any controller it replaces.
func (s *PageStore) Set(c *Controller) {
	s.log.V(1).Info("set", "page", c.pageNum)
	s.mu.Lock()
	prev, replaced := s.controllers[c.pageNum]
	s.controllers[c.pageNum] = c
	s.mu.Unlock()
	if replaced && prev != c {
		prev.Destroy()
	}
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
