package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firecost/internal/models"
	"firecost/internal/redis"
)

const (
	keyPrefix  = "project_session:"
	DefaultTTL = 24 * time.Hour

	uploadedFilesKey = "uploadedFiles"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrConflict = errors.New("session version conflict")
	ErrInvalid  = errors.New("invalid session update")
)

// Backend is the subset of the redis client the store needs.
type Backend interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Count(ctx context.Context, pattern string) (int64, error)
}

// Store keeps wizard sessions in redis with a sliding TTL.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Patch is a partial update. Nil fields leave the stored value untouched.
type Patch struct {
	ProjectData      map[string]interface{}
	CurrentStep      *int
	CompletedSteps   []int
	ValidationStatus map[string]bool
	ExpectedVersion  *int64
}

// Health summarizes backing store state.
type Health struct {
	Status       string `json:"status"`
	Redis        string `json:"redis"`
	SessionCount int64  `json:"sessionCount"`
}

// NewStore builds a store; ttl <= 0 falls back to DefaultTTL.
func NewStore(backend Backend, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, ttl: ttl, now: func() time.Time { return time.Now().UTC() }, log: logger}
}

// TTL reports the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create allocates a new session holding initialData.
func (s *Store) Create(ctx context.Context, initialData map[string]interface{}) (*models.Session, error) {
	now := s.now()
	data := make(map[string]interface{}, len(initialData)+1)
	for k, v := range initialData {
		data[k] = v
	}
	if _, ok := data[uploadedFilesKey]; !ok {
		data[uploadedFilesKey] = []interface{}{}
	}
	se := &models.Session{
		SessionID:      uuid.NewString(),
		ProjectData:    data,
		CurrentStep:    models.MinWizardStep,
		CompletedSteps: []int{},
		Version:        1,
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.save(ctx, se); err != nil {
		return nil, err
	}
	s.log.Debug("session created", zap.String("session_id", se.SessionID), zap.Time("expires_at", se.ExpiresAt))
	return se, nil
}

// Get returns a live session. Expired records are removed and reported as
// not found.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	se, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if se.Expired(s.now()) {
		s.drop(ctx, id)
		return nil, ErrNotFound
	}
	return se, nil
}

// Update merges patch into the stored session and refreshes its expiry.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*models.Session, error) {
	se, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if se.Expired(now) {
		s.drop(ctx, id)
		return nil, ErrExpired
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != se.Version {
		return nil, fmt.Errorf("%w: expected %d, stored %d", ErrConflict, *patch.ExpectedVersion, se.Version)
	}
	if patch.CurrentStep != nil {
		step := *patch.CurrentStep
		if step < models.MinWizardStep || step > models.MaxWizardStep {
			return nil, fmt.Errorf("%w: currentStep must be between %d and %d", ErrInvalid, models.MinWizardStep, models.MaxWizardStep)
		}
		se.CurrentStep = step
	}

	se.ProjectData = MergeProjectData(se.ProjectData, patch.ProjectData)
	switch {
	case patch.CompletedSteps != nil:
		se.CompletedSteps = normalizeSteps(patch.CompletedSteps)
	case patch.CurrentStep != nil:
		se.CompletedSteps = normalizeSteps(append(se.CompletedSteps, *patch.CurrentStep))
	}
	applyValidation(&se.ValidationStatus, patch.ValidationStatus)

	se.Version++
	se.LastActivity = now
	se.ExpiresAt = now.Add(s.ttl)
	if err := s.save(ctx, se); err != nil {
		return nil, err
	}
	return se, nil
}

// Delete removes the session and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.backend.Del(ctx, keyPrefix+id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings redis and counts live session keys.
func (s *Store) HealthCheck(ctx context.Context) Health {
	if err := s.backend.Ping(ctx); err != nil {
		s.log.Warn("session store ping failed", zap.Error(err))
		return Health{Status: "unhealthy", Redis: "disconnected"}
	}
	count, err := s.backend.Count(ctx, keyPrefix+"*")
	if err != nil {
		s.log.Warn("session count failed", zap.Error(err))
		return Health{Status: "degraded", Redis: "connected"}
	}
	return Health{Status: "healthy", Redis: "connected", SessionCount: count}
}

// MergeProjectData overlays patch onto stored. uploadedFiles is replaced
// only by a non-empty list.
func MergeProjectData(stored, patch map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(stored)+len(patch))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range patch {
		if k == uploadedFilesKey && !nonEmptyList(v) {
			continue
		}
		merged[k] = v
	}
	if _, ok := merged[uploadedFilesKey]; !ok {
		merged[uploadedFilesKey] = []interface{}{}
	}
	return merged
}

func nonEmptyList(v interface{}) bool {
	switch list := v.(type) {
	case []interface{}:
		return len(list) > 0
	case []map[string]interface{}:
		return len(list) > 0
	case []models.UploadedFile:
		return len(list) > 0
	default:
		return false
	}
}

func normalizeSteps(steps []int) []int {
	seen := make(map[int]struct{}, len(steps))
	out := make([]int, 0, len(steps))
	for _, st := range steps {
		if st < models.MinWizardStep || st > models.MaxWizardStep {
			continue
		}
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
	}
	sort.Ints(out)
	return out
}

func applyValidation(vs *models.ValidationStatus, patch map[string]bool) {
	for k, v := range patch {
		switch k {
		case "step1":
			vs.Step1 = v
		case "step2":
			vs.Step2 = v
		case "step3":
			vs.Step3 = v
		case "step4":
			vs.Step4 = v
		}
	}
}

func (s *Store) load(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.backend.Get(ctx, keyPrefix+id)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var se models.Session
	if err := json.Unmarshal([]byte(raw), &se); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if se.ProjectData == nil {
		se.ProjectData = map[string]interface{}{uploadedFilesKey: []interface{}{}}
	}
	if se.CompletedSteps == nil {
		se.CompletedSteps = []int{}
	}
	return &se, nil
}

func (s *Store) save(ctx context.Context, se *models.Session) error {
	data, err := json.Marshal(se)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := se.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.backend.Set(ctx, keyPrefix+se.SessionID, data, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *Store) drop(ctx context.Context, id string) {
	if _, err := s.backend.Del(ctx, keyPrefix+id); err != nil {
		s.log.Warn("drop expired session failed", zap.String("session_id", id), zap.Error(err))
	}
}
