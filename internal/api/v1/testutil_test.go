package v1_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/auth"
	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject user/role/request metadata into context for DoCtx
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID, role string) context.Context {
	ctx := middleware.WithUser(context.Background(), userID, role)
	return middleware.WithRequestMeta(ctx, middleware.RequestMeta{
		IPAddress: "203.0.113.7",
		UserAgent: "tasktrail-test/1.0",
	})
}

func adminCtx(userID uuid.UUID) context.Context   { return userCtx(userID, domain.RoleAdmin) }
func managerCtx(userID uuid.UUID) context.Context { return userCtx(userID, domain.RoleManager) }
func memberCtx(userID uuid.UUID) context.Context  { return userCtx(userID, domain.RoleMember) }

// errorBody is the failure envelope every endpoint returns.
type errorBody struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	users    domain.UserRepository
	projects domain.ProjectRepository
	tasks    domain.TaskRepository
	audit    domain.AuditRepository
}

func (m *mockDataStore) Users() domain.UserRepository       { return m.users }
func (m *mockDataStore) Projects() domain.ProjectRepository { return m.projects }
func (m *mockDataStore) Tasks() domain.TaskRepository       { return m.tasks }
func (m *mockDataStore) Audit() domain.AuditRepository      { return m.audit }

// ---------------------------------------------------------------------------
// Mock UserRepository
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	createFunc     func(ctx context.Context, u *domain.User) error
	getByIDFunc    func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	getByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
	updateFunc     func(ctx context.Context, u *domain.User) error
	listFunc       func(ctx context.Context, limit, offset int) ([]*domain.User, error)
	deleteFunc     func(ctx context.Context, id uuid.UUID) error
	countFunc      func(ctx context.Context) (int64, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.createFunc(ctx, u)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getByEmailFunc(ctx, email)
}

func (m *mockUserRepo) Update(ctx context.Context, u *domain.User) error {
	return m.updateFunc(ctx, u)
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockUserRepo) Count(ctx context.Context) (int64, error) {
	return m.countFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock ProjectRepository
// ---------------------------------------------------------------------------

type mockProjectRepo struct {
	createFunc  func(ctx context.Context, p *domain.Project) error
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	updateFunc  func(ctx context.Context, p *domain.Project) error
	listFunc    func(ctx context.Context, limit, offset int) ([]*domain.Project, error)
	deleteFunc  func(ctx context.Context, id uuid.UUID) error
	countFunc   func(ctx context.Context) (int64, error)
}

func (m *mockProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	return m.createFunc(ctx, p)
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	return m.updateFunc(ctx, p)
}

func (m *mockProjectRepo) List(ctx context.Context, limit, offset int) ([]*domain.Project, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockProjectRepo) Count(ctx context.Context) (int64, error) {
	return m.countFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock TaskRepository
// ---------------------------------------------------------------------------

type mockTaskRepo struct {
	createFunc        func(ctx context.Context, t *domain.Task) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	listByProjectFunc func(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error)
	listByStatusFunc  func(ctx context.Context, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error)
	updateStatusFunc  func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
	updateFunc        func(ctx context.Context, t *domain.Task) error
	deleteFunc        func(ctx context.Context, id uuid.UUID) error
	countByStatusFunc func(ctx context.Context) ([]domain.TaskStatusCount, error)
}

func (m *mockTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	return m.createFunc(ctx, t)
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error) {
	return m.listByProjectFunc(ctx, projectID)
}

func (m *mockTaskRepo) ListByStatus(ctx context.Context, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error) {
	return m.listByStatusFunc(ctx, projectID, status)
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	return m.updateStatusFunc(ctx, id, status)
}

func (m *mockTaskRepo) Update(ctx context.Context, t *domain.Task) error {
	return m.updateFunc(ctx, t)
}

func (m *mockTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockTaskRepo) CountByStatus(ctx context.Context) ([]domain.TaskStatusCount, error) {
	return m.countByStatusFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock AuditRepository
// ---------------------------------------------------------------------------

type mockAuditRepo struct {
	recordFunc     func(ctx context.Context, e *domain.AuditLogEntry) error
	listFunc       func(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLogEntry, error)
	countSinceFunc func(ctx context.Context, since time.Time) (int64, error)
}

func (m *mockAuditRepo) Record(ctx context.Context, e *domain.AuditLogEntry) error {
	return m.recordFunc(ctx, e)
}

func (m *mockAuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	return m.listFunc(ctx, f)
}

func (m *mockAuditRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return m.countSinceFunc(ctx, since)
}

// ---------------------------------------------------------------------------
// Recording AuditRecorder
// ---------------------------------------------------------------------------

type spyRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *spyRecorder) Track(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *spyRecorder) recorded() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// ---------------------------------------------------------------------------
// Mock AuditQuerier
// ---------------------------------------------------------------------------

type mockAuditQuerier struct {
	entityHistoryFunc  func(ctx context.Context, entityType, entityID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
	userActivityFunc   func(ctx context.Context, userID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
	recentActivityFunc func(ctx context.Context, limit int, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
}

func (m *mockAuditQuerier) EntityHistory(ctx context.Context, entityType, entityID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error) {
	return m.entityHistoryFunc(ctx, entityType, entityID, p, tr)
}

func (m *mockAuditQuerier) UserActivity(ctx context.Context, userID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error) {
	return m.userActivityFunc(ctx, userID, p, tr)
}

func (m *mockAuditQuerier) RecentActivity(ctx context.Context, limit int, tr audit.TimeRange) ([]*domain.AuditLogEntry, error) {
	return m.recentActivityFunc(ctx, limit, tr)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, email, password, name string) (*domain.User, error)
	loginFunc        func(ctx context.Context, email, password string) (*domain.User, auth.Tokens, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
	newUserFunc      func(email, password, name, role string) (*domain.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	return m.registerFunc(ctx, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*domain.User, auth.Tokens, error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

func (m *mockAuthService) NewUser(email, password, name, role string) (*domain.User, error) {
	return m.newUserFunc(email, password, name, role)
}

// ---------------------------------------------------------------------------
// Mock StatsCache
// ---------------------------------------------------------------------------

type memStatsCache struct {
	mu    sync.Mutex
	items map[string][]byte
	sets  int
}

func (c *memStatsCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memStatsCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.items == nil {
		c.items = map[string][]byte{}
	}
	c.items[key] = raw
	c.sets++
	return nil
}
