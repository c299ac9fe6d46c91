package dashboard

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/platform/apperror"
)

// Service computes read-only summaries. Calls have no side effects.
type Service struct {
	repo      Repository
	loc       *time.Location
	opTimeout time.Duration
	now       func() time.Time
}

func NewService(repo Repository, loc *time.Location, opTimeout time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, opTimeout: opTimeout, now: time.Now}
}

// Location is the clinic time zone used for day boundaries.
func (s *Service) Location() *time.Location { return s.loc }

// ParseRange reads YYYY-MM-DD bounds in the clinic time zone. Missing bounds
// default to the seven days ending today.
func (s *Service) ParseRange(from, to string) (Range, error) {
	const op = "dashboard.range"
	today := s.now().In(s.loc)
	r := Range{To: time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)}
	if to != "" {
		t, err := time.ParseInLocation(DateLayout, to, s.loc)
		if err != nil {
			return Range{}, apperror.Validation(op, "to must be YYYY-MM-DD")
		}
		r.To = t
	}
	r.From = r.To.AddDate(0, 0, -6)
	if from != "" {
		f, err := time.ParseInLocation(DateLayout, from, s.loc)
		if err != nil {
			return Range{}, apperror.Validation(op, "from must be YYYY-MM-DD")
		}
		r.From = f
	}
	return r, nil
}

func (s *Service) window(r Range) (Window, error) {
	const op = "dashboard.summarize"
	from := time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(r.To.Year(), r.To.Month(), r.To.Day(), 0, 0, 0, 0, s.loc)
	if from.After(to) {
		return Window{}, apperror.Validation(op, "from must not be after to")
	}
	if days := (Range{From: from, To: to}).Days(); days > MaxRangeDays {
		return Window{}, apperror.Validation(op, "range covers %d days, the limit is %d", days, MaxRangeDays)
	}
	return Window{
		Start:    from,
		End:      to.AddDate(0, 0, 1),
		FromDate: from.Format(DateLayout),
		ToDate:   to.Format(DateLayout),
		Location: s.loc,
	}, nil
}

// Summarize reports activity over r. The independent counts run
// concurrently; the first failure cancels the rest.
func (s *Service) Summarize(ctx context.Context, r Range, scope Scope) (*Summary, error) {
	const op = "dashboard.summarize"
	w, err := s.window(r)
	if err != nil {
		return nil, err
	}
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	out := &Summary{From: w.FromDate, To: w.ToDate, DoctorID: scope.DoctorID}
	var byDay map[string]int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.PatientCount, err = s.repo.CountPatients(gctx, w, scope.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		out.AppointmentCount, err = s.repo.CountAppointments(gctx, w, scope.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		out.DoctorCount, err = s.repo.CountDoctors(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Revenue, err = s.repo.Revenue(gctx, w, scope.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		out.WaitingQueue, err = s.repo.QueueSnapshot(gctx, scope.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		byDay, err = s.repo.ConsultationsByDay(gctx, w, scope.DoctorID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperror.Wrap(op, err)
	}

	out.Revenue = math.Round(out.Revenue*100) / 100
	out.DailySeries = series(w, byDay)
	return out, nil
}

// series lists every day of the window in order, zero where nothing was
// recorded.
func series(w Window, byDay map[string]int) []DayCount {
	out := make([]DayCount, 0, int(w.End.Sub(w.Start).Hours()/24)+1)
	for d := w.Start; d.Before(w.End); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		out = append(out, DayCount{Date: key, Consultations: byDay[key]})
	}
	return out
}
