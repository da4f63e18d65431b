package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dicom-import-api/models"
)

// Level is one of the six cascading choices of the clinical context.
type Level int

const (
	LevelStudy Level = iota
	LevelCenter
	LevelEquipment
	LevelSubject
	LevelExamination
	LevelConverter
)

var levelNames = [...]string{"study", "center", "equipment", "subject", "examination", "converter"}

func (l Level) String() string {
	if l < LevelStudy || l > LevelConverter {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name as used in routes.
func ParseLevel(name string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown context level %q", name)
}

// Backend is the set of read-only lookups the context step needs.
type Backend interface {
	ListStudiesWithCenters(ctx context.Context) ([]*models.Study, error)
	ListCenters(ctx context.Context) ([]*models.Center, error)
	FindSubjectsByStudy(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error)
	FindExaminationsBySubjectAndStudy(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error)
	ListConverters(ctx context.Context) ([]*models.NiftiConverter, error)
}

// Options are the candidates of every level.
type Options struct {
	Studies      []*models.Study                   `json:"studies"`
	Centers      []*models.Center                  `json:"centers"`
	Equipments   []*models.AcquisitionEquipment    `json:"acquisitionEquipments"`
	Subjects     []*models.SubjectWithSubjectStudy `json:"subjects"`
	Examinations []*models.SubjectExamination      `json:"examinations"`
	Converters   []*models.NiftiConverter          `json:"niftiConverters"`
}

// SelectorConfig bounds the backend lookups.
type SelectorConfig struct {
	Timeout       time.Duration
	Retries       uint64
	RetryInterval time.Duration
	Logger        logrus.FieldLogger
}

// Selector drives the cascading selection of the clinical context.
//
// Every change of a level clears the levels below it and bumps the generation. Lookups capture the
// generation when they start and their result is dropped if it changed in the meantime.
type Selector struct {
	backend Backend
	cfg     SelectorConfig
	log     logrus.FieldLogger

	mu         sync.Mutex
	options    Options
	context    models.ContextData
	generation uint64
	cancel     context.CancelFunc
	err        *LookupError
	inflight   int
	idle       chan struct{}
}

// NewSelector returns a selector with no option loaded.
func NewSelector(backend Backend, cfg SelectorConfig) *Selector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	idle := make(chan struct{})
	close(idle)
	return &Selector{
		backend: backend,
		cfg:     cfg,
		log:     log.WithField("module", "selector"),
		idle:    idle,
	}
}

// Load fetches studies and centers, annotates their compatibility with the import source and
// auto-selects the study when exactly one is compatible.
func (s *Selector) Load(ctx context.Context, mode Mode, fp Fingerprint) ([]error, error) {
	var studies []*models.Study
	var centers []*models.Center

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		studies, err = retry(gctx, s.cfg, s.backend.ListStudiesWithCenters)
		return err
	})
	g.Go(func() error {
		var err error
		centers, err = retry(gctx, s.cfg, s.backend.ListCenters)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &LookupError{Level: LevelStudy, Err: err}
	}

	resolved, missing := ResolveCompatibility(mode, fp, studies, centers)
	for _, err := range missing {
		s.log.WithError(err).Warn("skipping study center")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump()
	s.options = Options{Studies: resolved}
	s.context = models.ContextData{}
	if study := singleCompatible(resolved, func(st *models.Study) bool { return st.Compatible }); study != nil {
		s.selectStudy(study)
	}
	return missing, nil
}

// Select chooses the option with the given id at level.
func (s *Selector) Select(level Level, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch level {
	case LevelStudy:
		st := find(s.options.Studies, func(o *models.Study) bool { return o.ID == id })
		if st == nil {
			return ErrUnknownOption
		}
		s.selectStudy(st)
	case LevelCenter:
		c := find(s.options.Centers, func(o *models.Center) bool { return o.ID == id })
		if c == nil {
			return ErrUnknownOption
		}
		s.selectCenter(c)
	case LevelEquipment:
		eq := find(s.options.Equipments, func(o *models.AcquisitionEquipment) bool { return o.ID == id })
		if eq == nil {
			return ErrUnknownOption
		}
		s.selectEquipment(eq)
	case LevelSubject:
		sub := find(s.options.Subjects, func(o *models.SubjectWithSubjectStudy) bool { return o.ID == id })
		if sub == nil {
			return ErrUnknownOption
		}
		s.selectSubject(sub)
	case LevelExamination:
		ex := find(s.options.Examinations, func(o *models.SubjectExamination) bool { return o.ID == id })
		if ex == nil {
			return ErrUnknownOption
		}
		s.selectExamination(ex)
	case LevelConverter:
		c := find(s.options.Converters, func(o *models.NiftiConverter) bool { return o.ID == id })
		if c == nil {
			return ErrUnknownOption
		}
		s.context.NiftiConverter = c
	default:
		return fmt.Errorf("unknown context level %d", level)
	}
	return nil
}

// Clear unselects level and everything below it.
func (s *Selector) Clear(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch level {
	case LevelStudy:
		s.selectStudy(nil)
	case LevelCenter:
		s.selectCenter(nil)
	case LevelEquipment:
		s.selectEquipment(nil)
	case LevelSubject:
		s.selectSubject(nil)
	case LevelExamination:
		s.selectExamination(nil)
	case LevelConverter:
		s.context.NiftiConverter = nil
	}
}

// Restore replays a saved context top-down, waiting for each lookup before the next level.
// Replay stops at the first level whose saved choice is no longer a candidate.
func (s *Selector) Restore(ctx context.Context, saved models.ContextData) error {
	steps := []struct {
		level Level
		id    *int64
	}{
		{LevelStudy, idOf(saved.Study != nil, func() int64 { return saved.Study.ID })},
		{LevelCenter, idOf(saved.Center != nil, func() int64 { return saved.Center.ID })},
		{LevelEquipment, idOf(saved.AcquisitionEquipment != nil, func() int64 { return saved.AcquisitionEquipment.ID })},
		{LevelSubject, idOf(saved.Subject != nil, func() int64 { return saved.Subject.ID })},
		{LevelExamination, idOf(saved.Examination != nil, func() int64 { return saved.Examination.ID })},
		{LevelConverter, idOf(saved.NiftiConverter != nil, func() int64 { return saved.NiftiConverter.ID })},
	}
	for _, step := range steps {
		if step.id == nil {
			continue
		}
		if err := s.Wait(ctx); err != nil {
			return err
		}
		if err := s.Select(step.level, *step.id); err != nil {
			s.log.WithField("level", step.level).Debug("saved choice is no longer available")
			return nil
		}
	}
	return s.Wait(ctx)
}

// Wait blocks until no lookup is in flight.
func (s *Selector) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Context returns the current choices.
func (s *Selector) Context() models.ContextData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// Options returns the current candidates.
func (s *Selector) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Valid reports whether all six levels are chosen.
func (s *Selector) Valid() bool {
	return s.Context().Valid()
}

// Err returns the last lookup failure of the current generation, if any.
func (s *Selector) Err() *LookupError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pending reports whether a lookup is in flight.
func (s *Selector) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Close cancels in-flight lookups.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump()
}

// bump starts a new generation: results of earlier lookups are dropped from now on.
func (s *Selector) bump() {
	s.generation++
	s.err = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Selector) selectStudy(study *models.Study) {
	s.bump()
	s.context = models.ContextData{Study: study}
	s.options.Centers = nil
	s.options.Equipments = nil
	s.options.Subjects = nil
	s.options.Examinations = nil
	s.options.Converters = nil
	if study == nil || study.ID == 0 {
		return
	}

	for _, sc := range study.StudyCenterList {
		if sc != nil && sc.Center != nil {
			s.options.Centers = append(s.options.Centers, sc.Center)
		}
	}
	if center := singleCompatible(s.options.Centers, func(c *models.Center) bool { return c.Compatible }); center != nil {
		s.selectCenter(center)
	}
}

func (s *Selector) selectCenter(center *models.Center) {
	s.bump()
	s.context.Center = center
	s.context.AcquisitionEquipment = nil
	s.context.Subject = nil
	s.context.Examination = nil
	s.context.NiftiConverter = nil
	s.options.Equipments = nil
	s.options.Subjects = nil
	s.options.Examinations = nil
	s.options.Converters = nil
	if center == nil {
		return
	}

	s.options.Equipments = center.AcquisitionEquipments
	if eq := singleCompatible(center.AcquisitionEquipments, func(e *models.AcquisitionEquipment) bool { return e.Compatible }); eq != nil {
		s.selectEquipment(eq)
	}
}

func (s *Selector) selectEquipment(eq *models.AcquisitionEquipment) {
	s.bump()
	s.context.AcquisitionEquipment = eq
	s.context.Subject = nil
	s.context.Examination = nil
	s.context.NiftiConverter = nil
	s.options.Subjects = nil
	s.options.Examinations = nil
	s.options.Converters = nil
	if eq == nil || s.context.Study == nil {
		return
	}

	studyID := s.context.Study.ID
	startLookup(s, LevelSubject,
		func(ctx context.Context) ([]*models.SubjectWithSubjectStudy, error) {
			return s.backend.FindSubjectsByStudy(ctx, studyID)
		},
		func(subjects []*models.SubjectWithSubjectStudy) { s.options.Subjects = subjects })
}

func (s *Selector) selectSubject(subject *models.SubjectWithSubjectStudy) {
	s.bump()
	s.context.Subject = subject
	s.context.Examination = nil
	s.context.NiftiConverter = nil
	s.options.Examinations = nil
	s.options.Converters = nil
	if subject == nil || s.context.Study == nil {
		return
	}

	subjectID, studyID := subject.ID, s.context.Study.ID
	startLookup(s, LevelExamination,
		func(ctx context.Context) ([]*models.SubjectExamination, error) {
			return s.backend.FindExaminationsBySubjectAndStudy(ctx, subjectID, studyID)
		},
		func(exams []*models.SubjectExamination) { s.options.Examinations = exams })
}

func (s *Selector) selectExamination(exam *models.SubjectExamination) {
	s.bump()
	s.context.Examination = exam
	s.context.NiftiConverter = nil
	s.options.Converters = nil
	if exam == nil {
		return
	}

	startLookup(s, LevelConverter, s.backend.ListConverters,
		func(converters []*models.NiftiConverter) { s.options.Converters = converters })
}

// startLookup runs fetch on its own goroutine and applies its result under the selector lock,
// unless the generation moved on. Must be called with s.mu held.
func startLookup[T any](s *Selector, level Level, fetch func(context.Context) ([]T, error), apply func([]T)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.generation
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++

	go func() {
		defer cancel()
		items, err := retry(ctx, s.cfg, fetch)

		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.settle()

		log := s.log.WithField("level", level)
		if gen != s.generation {
			log.Debug("dropping stale lookup result")
			return
		}
		if err != nil {
			log.WithError(err).Error("lookup failed")
			s.err = &LookupError{Level: level, Err: err}
			return
		}
		apply(items)
	}()
}

// settle marks one lookup as done. Must be called with s.mu held.
func (s *Selector) settle() {
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// retry calls fetch with a per-call timeout and retries it with exponential backoff.
func retry[T any](ctx context.Context, cfg SelectorConfig, fetch func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, cfg.Retries), ctx)

	var result T
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		var err error
		result, err = fetch(callCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	return result, err
}

func singleCompatible[T any](items []*T, compatible func(*T) bool) *T {
	var match *T
	count := 0
	for _, item := range items {
		if item != nil && compatible(item) {
			match = item
			count++
		}
	}
	if count != 1 {
		return nil
	}
	return match
}

func find[T any](items []*T, match func(*T) bool) *T {
	for _, item := range items {
		if item != nil && match(item) {
			return item
		}
	}
	return nil
}

func idOf(ok bool, id func() int64) *int64 {
	if !ok {
		return nil
	}
	v := id()
	return &v
}
