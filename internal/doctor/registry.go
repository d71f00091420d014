// Package doctor keeps the directory of practitioners. Speciality lookups are
// the hot path during rebooking, so they are served from a short-lived cache.
package doctor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Registry stores doctors and answers speciality queries.
type Registry struct {
	mu      sync.RWMutex
	doctors map[string]model.Doctor
	cache   *cache.Cache
}

func NewRegistry() *Registry {
	return &Registry{
		doctors: make(map[string]model.Doctor),
		cache:   cache.New(cacheTTL, cacheCleanup),
	}
}

// Register adds a doctor and returns it with a generated id.
func (r *Registry) Register(ctx context.Context, req model.CreateDoctorRequest) (model.Doctor, error) {
	doc := model.Doctor{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		Specialities: req.Specialities,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.doctors {
		if existing.Email == doc.Email {
			return model.Doctor{}, apperrors.Conflict("doctor with this email already exists", nil)
		}
	}
	r.doctors[doc.ID] = doc
	r.cache.Flush()
	return doc, nil
}

// Update replaces a doctor's details, keeping the id.
func (r *Registry) Update(ctx context.Context, id string, req model.CreateDoctorRequest) (model.Doctor, error) {
	email := strings.ToLower(req.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.doctors[id]
	if !ok {
		return model.Doctor{}, apperrors.NotFound("doctor", nil)
	}
	for otherID, existing := range r.doctors {
		if otherID != id && existing.Email == email && email != "" {
			return model.Doctor{}, apperrors.Conflict("doctor with this email already exists", nil)
		}
	}

	doc.Name = req.Name
	doc.Email = email
	doc.Specialities = req.Specialities
	r.doctors[id] = doc
	r.cache.Flush()
	return doc, nil
}

// Get returns the doctor by id.
func (r *Registry) Get(ctx context.Context, id string) (model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.doctors[id]
	if !ok {
		return model.Doctor{}, apperrors.NotFound("doctor", nil)
	}
	return doc, nil
}

// List returns all doctors sorted by name.
func (r *Registry) List(ctx context.Context) []model.Doctor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]model.Doctor, 0, len(r.doctors))
	for _, doc := range r.doctors {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs
}

// FindBySpeciality returns doctors carrying the speciality, case-insensitive.
func (r *Registry) FindBySpeciality(ctx context.Context, speciality string) []model.Doctor {
	key := "speciality:" + strings.ToLower(speciality)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]model.Doctor)
	}

	r.mu.RLock()
	matched := make([]model.Doctor, 0)
	for _, doc := range r.doctors {
		for _, s := range doc.Specialities {
			if strings.EqualFold(s, speciality) {
				matched = append(matched, doc)
				break
			}
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	r.cache.Set(key, matched, cache.DefaultExpiration)
	return matched
}
