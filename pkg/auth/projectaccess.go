package auth

import (
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
)

// ResourceType names the kind of project-scoped marketplace resource an
// access grant covers.
type ResourceType string

const (
	ResourceAgent ResourceType = "agent"
	ResourceModel ResourceType = "model"
)

// AccessLevel is the level of access a project holds over a resource.
type AccessLevel string

const (
	AccessReadOnly   AccessLevel = "ReadOnly"
	AccessFullAccess AccessLevel = "FullAccess"
	AccessOwner      AccessLevel = "Owner"
)

var accessRank = map[AccessLevel]int{
	AccessReadOnly:   1,
	AccessFullAccess: 2,
	AccessOwner:      3,
}

// satisfies reports whether held access meets or exceeds required.
func (held AccessLevel) satisfies(required AccessLevel) bool {
	return accessRank[held] >= accessRank[required]
}

type resourceKey struct {
	kind ResourceType
	id   string
}

// grant is one project's access record for a resource.
type grant struct {
	projectID string
	level     AccessLevel
	grantedBy string
	grantedAt time.Time
	expiresAt *time.Time
}

func (g grant) valid(now time.Time) bool {
	return g.expiresAt == nil || now.Before(*g.expiresAt)
}

// ProjectAccessStore is the in-memory (project_id, resource) -> access
// level matrix.
type ProjectAccessStore struct {
	mu      sync.RWMutex
	records map[resourceKey][]grant
}

// NewProjectAccessStore constructs an empty store.
func NewProjectAccessStore() *ProjectAccessStore {
	return &ProjectAccessStore{records: make(map[resourceKey][]grant)}
}

// Grant records projectID's access to a resource, replacing any existing
// grant for the same (project, resource) pair.
func (s *ProjectAccessStore) Grant(projectID string, kind ResourceType, resourceID string, level AccessLevel, grantedBy string, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey{kind: kind, id: resourceID}
	existing := s.records[key]
	filtered := existing[:0]
	for _, g := range existing {
		if g.projectID != projectID {
			filtered = append(filtered, g)
		}
	}
	s.records[key] = append(filtered, grant{
		projectID: projectID,
		level:     level,
		grantedBy: grantedBy,
		grantedAt: time.Now(),
		expiresAt: expiresAt,
	})
}

// Revoke removes projectID's grant for a resource, reporting whether one
// existed.
func (s *ProjectAccessStore) Revoke(projectID string, kind ResourceType, resourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey{kind: kind, id: resourceID}
	existing := s.records[key]
	before := len(existing)
	filtered := existing[:0]
	for _, g := range existing {
		if g.projectID != projectID {
			filtered = append(filtered, g)
		}
	}
	s.records[key] = filtered
	return len(filtered) != before
}

// CheckAccess verifies projectID has at least required access to a
// resource, returning a Forbidden apierr.Error otherwise.
func (s *ProjectAccessStore) CheckAccess(projectID string, kind ResourceType, resourceID string, required AccessLevel) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for _, g := range s.records[resourceKey{kind: kind, id: resourceID}] {
		if g.projectID == projectID && g.valid(now) && g.level.satisfies(required) {
			return nil
		}
	}
	return apierr.Forbidden("project %s lacks %s access to %s %s", projectID, required, kind, resourceID)
}
