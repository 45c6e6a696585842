package embedding

import "sync"

// Gallery holds the active enrollments in memory for matching. The people
// table is re-read only when the store's Version changes.
type Gallery struct {
	store *Store

	mu      sync.Mutex
	people  []Person
	version Version
}

// NewGallery loads the active people from store
func NewGallery(store *Store) (*Gallery, error) {
	g := &Gallery{store: store}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the enrolled people unconditionally
func (g *Gallery) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reload()
}

func (g *Gallery) reload() error {
	v, err := g.store.Version()
	if err != nil {
		return err
	}
	people, err := g.store.ListPeople()
	if err != nil {
		return err
	}

	active := people[:0]
	for _, p := range people {
		if p.Active {
			active = append(active, p)
		}
	}
	g.people = active
	g.version = v
	return nil
}

// Len returns the number of active people
func (g *Gallery) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.people)
}

// FindBestMatch returns the person whose closest sample is most similar to
// embedding, with that score. The person is nil unless the score exceeds threshold.
func (g *Gallery) FindBestMatch(embedding []float32, threshold float64) (*Person, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, err := g.store.Version()
	if err != nil {
		return nil, 0, err
	}
	if v != g.version {
		if err := g.reload(); err != nil {
			return nil, 0, err
		}
	}

	best := -1
	bestScore := -1.0
	for i := range g.people {
		for _, sample := range g.people[i].Embeddings {
			if score := CosineSimilarity(embedding, sample); score > bestScore {
				bestScore = score
				best = i
			}
		}
	}

	if best < 0 || bestScore <= threshold {
		return nil, bestScore, nil
	}

	p := g.people[best]
	return &p, bestScore, nil
}
