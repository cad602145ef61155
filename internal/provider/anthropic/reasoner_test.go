package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/taskd/internal/admission"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
)

func apiError(t *testing.T, status int) *anthropic.Error {
	t.Helper()
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")
}

func TestWrapErrMarksServerErrorsTransient(t *testing.T) {
	for _, status := range []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusTooManyRequests,
	} {
		err := wrapErr(apiError(t, status))
		require.Error(t, err)
		assert.True(t, admission.IsTransient(err), "status %d should be retryable", status)
		assert.Contains(t, err.Error(), "anthropic:")
	}
}

func TestWrapErrKeepsClientErrorsPermanent(t *testing.T) {
	err := wrapErr(apiError(t, http.StatusBadRequest))
	require.Error(t, err)
	assert.False(t, admission.IsTransient(err))

	err = wrapErr(apiError(t, http.StatusUnauthorized))
	assert.False(t, admission.IsTransient(err))

	err = wrapErr(errors.New("connection refused"))
	assert.False(t, admission.IsTransient(err))
}

// serverErrorReasoner fails Plan with an API server error a fixed
// number of times before succeeding, the way an overloaded backend
// behaves.
type serverErrorReasoner struct {
	t        *testing.T
	failures int
	calls    int
	plan     *provider.PlanResult
}

func (s *serverErrorReasoner) Decompose(context.Context, string) (*todo.List, error) {
	return nil, errors.New("not scripted")
}

func (s *serverErrorReasoner) SelectServers(context.Context, *todo.Item, *provider.ListContext) (*provider.ServerSelection, error) {
	return nil, errors.New("not scripted")
}

func (s *serverErrorReasoner) Plan(context.Context, *todo.Item, *provider.ListContext, []string) (*provider.PlanResult, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, wrapErr(apiError(s.t, http.StatusInternalServerError))
	}
	return s.plan, nil
}

func (s *serverErrorReasoner) Verify(context.Context, *todo.Item, []todo.CallResult, string) (*todo.VerificationResult, error) {
	return nil, errors.New("not scripted")
}

func (s *serverErrorReasoner) Replan(context.Context, *todo.Item, []todo.CallResult, *todo.VerificationResult) (*provider.ReplanDecision, error) {
	return nil, errors.New("not scripted")
}

func TestAdmissionRetriesServerErrors(t *testing.T) {
	plan := &provider.PlanResult{Success: true}
	inner := &serverErrorReasoner{t: t, failures: 2, plan: plan}

	cfg := admission.DefaultConfig()
	cfg.BatchWindow = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RatePerSecond = 10000
	cfg.Burst = 1000

	a, err := provider.NewAdmitted(cfg, inner, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	item := todo.NewItem("1", "write the report", "report exists")
	got, err := a.Plan(context.Background(), item, &provider.ListContext{}, []string{"filesystem"})
	require.NoError(t, err)
	assert.Same(t, plan, got)
	assert.Equal(t, 3, inner.calls)
}

func TestAdmissionSurfacesExhaustedServerErrors(t *testing.T) {
	inner := &serverErrorReasoner{t: t, failures: 10}

	cfg := admission.DefaultConfig()
	cfg.BatchWindow = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RatePerSecond = 10000
	cfg.Burst = 1000

	a, err := provider.NewAdmitted(cfg, inner, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	item := todo.NewItem("1", "write the report", "report exists")
	_, err = a.Plan(context.Background(), item, &provider.ListContext{}, []string{"filesystem"})
	require.Error(t, err)

	var exhausted *admission.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, inner.calls)
}
