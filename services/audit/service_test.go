package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/org-control-plane/models"
	"go.uber.org/zap"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, orgID, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	err := service.Start()
	require.NoError(t, err)

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Stopping twice and logging after stop are errors, not panics
	assert.Error(t, service.Stop(time.Second))
	assert.Error(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionAdminLogin, "acme")}))
}

func TestAuditService_LogEvent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	log := models.NewAuditLog(models.AuditActionOrganizationCreated, "Acme").WithOrganization("org-1")
	require.NoError(t, service.LogEvent(&AuditEvent{Log: log}))

	// Stop drains the queue
	require.NoError(t, service.Stop(5*time.Second))

	insertedLogs := mockRepo.GetInsertedLogs()
	require.Len(t, insertedLogs, 1)
	assert.Equal(t, "org-1", insertedLogs[0].OrganizationID)
	assert.Equal(t, models.AuditActionOrganizationCreated, insertedLogs[0].Action)
}

func TestAuditService_LogEventBlocking(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	log := models.NewAuditLog(models.AuditActionOrganizationDeleted, "Acme")
	require.NoError(t, service.LogEventBlocking(context.Background(), &AuditEvent{Log: log}))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 1)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				log := models.NewAuditLog(models.AuditActionAdminLogin, "Acme")
				_ = service.LogEvent(&AuditEvent{Log: log})
			}
		}()
	}

	wg.Wait()
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), goroutineCount*eventsPerGoroutine)
}

func TestAuditService_Record(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())

	var ctx context.Context
	middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	service.Record(ctx, models.NewAuditLog(models.AuditActionOrganizationRenamed, "Acme Corp").
		WithActor("a@x.com").
		WithDetail("previous_name", "Acme"))
	require.NoError(t, service.Stop(5*time.Second))

	insertedLogs := mockRepo.GetInsertedLogs()
	require.Len(t, insertedLogs, 1)
	assert.Equal(t, middleware.GetReqID(ctx), insertedLogs[0].RequestID)
	assert.NotEmpty(t, insertedLogs[0].RequestID)
	assert.Equal(t, "Acme", insertedLogs[0].Details["previous_name"])
}

func TestAuditService_RecordWhenStopped(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	assert.NotPanics(t, func() {
		service.Record(context.Background(), models.NewAuditLog(models.AuditActionAdminLogin, "Acme"))
	})
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAuditService_BufferFull(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())

	successCount := 0
	var lastErr error
	for i := 0; i < 20; i++ {
		err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionAdminLogin, "Acme")})
		if err == nil {
			successCount++
		} else {
			lastErr = err
		}
	}

	assert.Less(t, successCount, 20)
	assert.ErrorIs(t, lastErr, ErrBufferFull)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_StopTimeout(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	defer close(release)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionAdminLogin, "Acme")}))

	err := service.Stop(100 * time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_ListByOrganization(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	want := []*models.AuditLog{models.NewAuditLog(models.AuditActionOrganizationCreated, "Acme").WithOrganization("org-1")}
	mockRepo.On("ListByOrganization", mock.Anything, "org-1", 50).Return(want, nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	got, err := service.ListByOrganization(context.Background(), "org-1", 50)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	mockRepo.AssertExpectations(t)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 2, config.WorkerCount)

	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{})
	assert.Equal(t, 1000, service.GetStats().BufferSize)
}
