package featureinfo

import (
	"context"
	"sync"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/wall"
)

// LatestPresenter keeps the most recent result per view. Because superseded
// generations are discarded before presentation, the stored result is always
// the newest one issued for the view.
type LatestPresenter struct {
	mu     sync.RWMutex
	byView map[wall.ViewID]Result
}

// NewLatestPresenter creates an empty presenter
func NewLatestPresenter() *LatestPresenter {
	return &LatestPresenter{byView: make(map[wall.ViewID]Result)}
}

// Present stores the result for its view
func (p *LatestPresenter) Present(ctx context.Context, result Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byView[result.ViewID] = result
}

// Latest returns the newest presented result for the view
func (p *LatestPresenter) Latest(id wall.ViewID) (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.byView[id]
	return r, ok
}
