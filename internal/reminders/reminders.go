// Package reminders shows notifications on cron schedules.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"nudge/internal/config"
	"nudge/internal/engine"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

var ErrUnknownJob = errors.New("unknown reminder")

// Shower is the engine entry point reminders call.
type Shower interface {
	Show(typ templates.Type, content engine.Content, opts ...engine.Option) (string, error)
}

// parser accepts 5-field and 6-field (with seconds) specs plus descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type job struct {
	def     config.ReminderJob
	typ     templates.Type
	entryID cron.EntryID
}

type Service struct {
	mu   sync.Mutex
	cfg  config.RemindersConfig
	jobs []*job
	loc  *time.Location
	c    *cron.Cron

	shower Shower
	log    logx.Logger

	fired  atomic.Uint64
	failed atomic.Uint64
}

// Entry describes a scheduled reminder.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Type string    `json:"type"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

func New(cfg config.RemindersConfig, shower Shower, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{shower: shower, log: log}
	if err := s.setLocked(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every cron expression and the timezone without scheduling anything.
func Validate(cfg config.RemindersConfig) error {
	var errs []error
	if _, err := loadLocation(cfg.Timezone); err != nil {
		errs = append(errs, err)
	}
	for _, j := range cfg.Jobs {
		if _, err := parser.Parse(strings.TrimSpace(j.Spec)); err != nil {
			errs = append(errs, fmt.Errorf("reminder %q: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (s *Service) setLocked(cfg config.RemindersConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	loc, _ := loadLocation(cfg.Timezone)
	jobs := make([]*job, 0, len(cfg.Jobs))
	for _, d := range cfg.Jobs {
		if d.Disabled {
			continue
		}
		jobs = append(jobs, &job{def: d, typ: templates.ParseType(d.Type)})
	}
	s.cfg = cfg
	s.loc = loc
	s.jobs = jobs
	return nil
}

// Apply replaces the schedule. A running service restarts with the new jobs.
func (s *Service) Apply(cfg config.RemindersConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setLocked(cfg); err != nil {
		return err
	}
	if s.c != nil {
		s.restartLocked()
	}
	return nil
}

// Start begins triggering. Disabled configs start nothing.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.restartLocked()
}

// Stop waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("reminders stop timed out")
	}
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	if !s.cfg.Enabled {
		s.log.Info("reminders disabled")
		return
	}
	for _, j := range s.jobs {
		j := j
		id, err := s.c.AddFunc(j.def.Spec, func() { s.fire(j) })
		if err != nil {
			s.log.Warn("reminder not scheduled", logx.String("name", j.def.Name), logx.Err(err))
			continue
		}
		j.entryID = id
	}
	s.c.Start()
	s.log.Info("reminders started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) fire(j *job) {
	var opts []engine.Option
	if j.def.Priority > 0 {
		opts = append(opts, engine.WithPriority(j.def.Priority))
	}
	id, err := s.shower.Show(j.typ, engine.Content{Title: j.def.Title, Message: j.def.Message, Vars: j.def.Vars}, opts...)
	if err != nil {
		if engine.IsRejected(err) {
			s.log.Debug("reminder rejected", logx.String("name", j.def.Name), logx.Err(err))
			return
		}
		s.failed.Add(1)
		s.log.Warn("reminder failed", logx.String("name", j.def.Name), logx.Err(err))
		return
	}
	s.fired.Add(1)
	s.log.Debug("reminder shown", logx.String("name", j.def.Name), logx.String("id", id))
}

// RunNow fires the named reminder immediately.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var found *job
	for _, j := range s.jobs {
		if j.def.Name == name {
			found = j
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.fire(found)
	return nil
}

// Entries lists scheduled reminders sorted by next run.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := Entry{Name: j.def.Name, Spec: j.def.Spec, Type: string(j.typ)}
		if s.c != nil && j.entryID != 0 {
			ce := s.c.Entry(j.entryID)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Next.Before(out[k].Next) })
	return out
}

func (s *Service) Counters() (fired, failed uint64) {
	return s.fired.Load(), s.failed.Load()
}
