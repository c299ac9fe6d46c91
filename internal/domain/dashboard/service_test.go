package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

type stubRepo struct {
	mu       sync.Mutex
	windows  []Window
	doctors  []*uuid.UUID
	byDay    map[string]int
	revenue  float64
	failWith error
}

func (s *stubRepo) seen(w Window, doctorID *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, w)
	s.doctors = append(s.doctors, doctorID)
}

func (s *stubRepo) CountPatients(_ context.Context, w Window, doctorID *uuid.UUID) (int, error) {
	s.seen(w, doctorID)
	return 4, nil
}

func (s *stubRepo) CountAppointments(_ context.Context, w Window, doctorID *uuid.UUID) (int, error) {
	s.seen(w, doctorID)
	return 3, s.failWith
}

func (s *stubRepo) CountDoctors(context.Context) (int, error) { return 2, nil }

func (s *stubRepo) Revenue(_ context.Context, w Window, doctorID *uuid.UUID) (float64, error) {
	s.seen(w, doctorID)
	return s.revenue, nil
}

func (s *stubRepo) QueueSnapshot(context.Context, *uuid.UUID) (QueueSnapshot, error) {
	return QueueSnapshot{Waiting: 5, InConsultation: 1}, nil
}

func (s *stubRepo) ConsultationsByDay(_ context.Context, w Window, doctorID *uuid.UUID) (map[string]int, error) {
	s.seen(w, doctorID)
	return s.byDay, nil
}

var nairobi = time.FixedZone("EAT", 3*60*60)

func day(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, nairobi)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSummarize_NoActivityIsZeroFilled(t *testing.T) {
	svc := NewService(&stubRepo{}, nairobi, time.Second)
	out, err := svc.Summarize(context.Background(), Range{From: day("2026-02-01"), To: day("2026-02-28")}, Scope{})
	require.NoError(t, err)
	require.Len(t, out.DailySeries, 28)
	assert.Equal(t, "2026-02-01", out.DailySeries[0].Date)
	assert.Equal(t, "2026-02-28", out.DailySeries[27].Date)
	for _, d := range out.DailySeries {
		assert.Zero(t, d.Consultations)
	}
	assert.Zero(t, out.Revenue)
}

func TestSummarize_Aggregates(t *testing.T) {
	repo := &stubRepo{byDay: map[string]int{"2026-03-02": 3, "2026-03-04": 1}, revenue: 1234.565}
	svc := NewService(repo, nairobi, time.Second)
	doctor := uuid.New()

	out, err := svc.Summarize(context.Background(), Range{From: day("2026-03-01"), To: day("2026-03-05")}, Scope{DoctorID: &doctor})
	require.NoError(t, err)
	assert.Equal(t, 4, out.PatientCount)
	assert.Equal(t, 3, out.AppointmentCount)
	assert.Equal(t, 2, out.DoctorCount)
	assert.Equal(t, 1234.57, out.Revenue)
	assert.Equal(t, QueueSnapshot{Waiting: 5, InConsultation: 1}, out.WaitingQueue)
	assert.Equal(t, []DayCount{
		{Date: "2026-03-01"}, {Date: "2026-03-02", Consultations: 3}, {Date: "2026-03-03"},
		{Date: "2026-03-04", Consultations: 1}, {Date: "2026-03-05"},
	}, out.DailySeries)

	for i, w := range repo.windows {
		assert.True(t, w.Start.Equal(time.Date(2026, 2, 28, 21, 0, 0, 0, time.UTC)), w.Start)
		assert.True(t, w.End.Equal(time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)), w.End)
		assert.Equal(t, "2026-03-01", w.FromDate)
		assert.Equal(t, "2026-03-05", w.ToDate)
		assert.Equal(t, &doctor, repo.doctors[i])
	}
}

func TestSummarize_Idempotent(t *testing.T) {
	svc := NewService(&stubRepo{byDay: map[string]int{"2026-03-02": 2}}, nairobi, time.Second)
	r := Range{From: day("2026-03-01"), To: day("2026-03-03")}
	first, err := svc.Summarize(context.Background(), r, Scope{})
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), r, Scope{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSummarize_SingleDay(t *testing.T) {
	svc := NewService(&stubRepo{}, nairobi, time.Second)
	out, err := svc.Summarize(context.Background(), Range{From: day("2026-03-01"), To: day("2026-03-01")}, Scope{})
	require.NoError(t, err)
	assert.Len(t, out.DailySeries, 1)
}

func TestSummarize_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nairobi, time.Second)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, Range{From: day("2026-03-02"), To: day("2026-03-01")}, Scope{})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.Summarize(ctx, Range{From: day("2025-01-01"), To: day("2026-01-02")}, Scope{})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	out, err := svc.Summarize(ctx, Range{From: day("2024-01-01"), To: day("2024-12-31")}, Scope{})
	require.NoError(t, err)
	assert.Len(t, out.DailySeries, 366)
}

func TestSummarize_PropagatesFailure(t *testing.T) {
	svc := NewService(&stubRepo{failWith: errors.New("connection reset")}, nairobi, time.Second)
	_, err := svc.Summarize(context.Background(), Range{From: day("2026-03-01"), To: day("2026-03-02")}, Scope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestParseRange(t *testing.T) {
	svc := NewService(&stubRepo{}, nairobi, time.Second)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC) }

	r, err := svc.ParseRange("", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", r.From.Format(DateLayout))
	assert.Equal(t, "2026-03-11", r.To.Format(DateLayout))
	assert.Equal(t, 7, r.Days())

	r, err = svc.ParseRange("2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, 31, r.Days())

	_, err = svc.ParseRange("01/01/2026", "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestHandler_Summary(t *testing.T) {
	repo := &stubRepo{}
	h := NewHandler(NewService(repo, nairobi, time.Second))
	doctor := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/dashboard?from=2026-03-01&to=2026-03-03", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), doctor.String(), []string{auth.RoleDoctor}))
	rec := httptest.NewRecorder()
	require.NoError(t, h.Summary(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var out Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.DailySeries, 3)
	require.NotNil(t, out.DoctorID)
	assert.Equal(t, doctor, *out.DoctorID)

	req = httptest.NewRequest(http.MethodGet, "/dashboard?from=2026-03-05&to=2026-03-01", nil)
	he, ok := h.Summary(echo.New().NewContext(req, httptest.NewRecorder())).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
