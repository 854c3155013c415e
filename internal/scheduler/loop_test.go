package scheduler

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type recorder struct {
	runs []string
}

func (r *recorder) job(name string, interval time.Duration, immediate bool) Job {
	return Job{
		Name:      name,
		Interval:  interval,
		Immediate: immediate,
		Run:       func(context.Context, time.Time) { r.runs = append(r.runs, name) },
	}
}

func (r *recorder) take() []string {
	runs := r.runs
	r.runs = nil
	return runs
}

func TestStep_DueJobsInOrder(t *testing.T) {
	rec := &recorder{}
	l := New(Options{})
	l.Add(rec.job("broker", 0, true))
	l.Add(rec.job("clock", 10*time.Second, true))
	l.Add(rec.job("dimming", 60*time.Second, true))
	l.Add(rec.job("lazy", 30*time.Second, false))

	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		at   time.Duration
		want []string
	}{
		{0, []string{"broker", "clock", "dimming"}},
		{5 * time.Second, []string{"broker"}},
		{10 * time.Second, []string{"broker", "clock"}},
		{30 * time.Second, []string{"broker", "clock", "lazy"}},
		{60 * time.Second, []string{"broker", "clock", "dimming", "lazy"}},
	}
	for _, s := range steps {
		l.Step(ctx, t0.Add(s.at))
		if got := rec.take(); !reflect.DeepEqual(got, s.want) {
			t.Errorf("at %v ran %v, want %v", s.at, got, s.want)
		}
	}
	if l.Ticks() != uint64(len(steps)) {
		t.Errorf("Ticks = %d, want %d", l.Ticks(), len(steps))
	}
}

func TestTrigger(t *testing.T) {
	rec := &recorder{}
	l := New(Options{})
	l.Add(rec.job("weather", 10*time.Minute, true))

	ctx := context.Background()
	t0 := time.Now()
	l.Step(ctx, t0)
	rec.take()

	l.Step(ctx, t0.Add(time.Second))
	if got := rec.take(); len(got) != 0 {
		t.Fatalf("ran %v before trigger", got)
	}

	l.Trigger("weather")
	l.Step(ctx, t0.Add(2*time.Second))
	if got := rec.take(); !reflect.DeepEqual(got, []string{"weather"}) {
		t.Fatalf("ran %v after trigger", got)
	}

	// A triggered run restarts the interval.
	l.Step(ctx, t0.Add(10*time.Minute))
	if got := rec.take(); len(got) != 0 {
		t.Errorf("ran %v before the restarted interval elapsed", got)
	}
}

type observed struct {
	name     string
	panicked bool
}

type fakeObserver struct{ calls []observed }

func (o *fakeObserver) ObserveJob(name string, _ time.Duration, panicked bool) {
	o.calls = append(o.calls, observed{name, panicked})
}

func TestStep_RecoversPanics(t *testing.T) {
	obs := &fakeObserver{}
	rec := &recorder{}
	l := New(Options{Observer: obs})
	l.Add(Job{Name: "bad", Run: func(context.Context, time.Time) { panic("boom") }})
	l.Add(rec.job("good", 0, true))

	l.Step(context.Background(), time.Now())

	if got := rec.take(); !reflect.DeepEqual(got, []string{"good"}) {
		t.Errorf("ran %v, want good after panic", got)
	}
	want := []observed{{"bad", true}, {"good", false}}
	if !reflect.DeepEqual(obs.calls, want) {
		t.Errorf("observed %v, want %v", obs.calls, want)
	}
}

func TestDo_RunsOnLoop(t *testing.T) {
	l := New(Options{Tick: time.Millisecond})
	counter := 0
	l.Add(Job{Name: "count", Run: func(context.Context, time.Time) { counter++ }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	var seen int
	wantErr := errors.New("rejected")
	err := l.Do(context.Background(), func(context.Context) error {
		seen = counter
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do err = %v, want %v", err, wantErr)
	}
	if seen < 1 {
		t.Errorf("counter = %d inside Do, want at least the immediate iteration", seen)
	}

	cancel()
	<-done

	if err := l.Do(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("Do after stop = %v, want ErrLoopStopped", err)
	}
	if l.Running() {
		t.Error("Running after stop")
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	l := New(Options{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	err := l.Do(context.Background(), func(context.Context) error { panic("bad handler") })
	if err == nil {
		t.Fatal("expected error from panicking request")
	}
}
