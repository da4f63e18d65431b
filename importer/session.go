package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dicom-import-api/models"
)

// Step is a wizard step that can own a session.
type Step int

const (
	StepSeries Step = iota + 1
	StepContext
	// StepFinish only reads the committed result.
	StepFinish
)

func (s Step) String() string {
	switch s {
	case StepSeries:
		return "series"
	case StepContext:
		return "context"
	case StepFinish:
		return "finish"
	default:
		return "none"
	}
}

var errWrongStep = errors.New("import: update not allowed for this step")

// Session holds the state of one run of the import wizard.
type Session struct {
	ID         string    `json:"id"`
	Mode       Mode      `json:"mode"`
	WorkFolder string    `json:"workFolder"`
	CreatedAt  time.Time `json:"createdAt"`

	mu        sync.Mutex
	closed    bool
	owner     Step
	patients  *models.PatientList
	files     Files
	tree      *Tree
	backup    models.ContextData
	committed *models.ContextData
	selector  *Selector
	preview   *Preview
}

// NewSession creates a session for the discovered patients.
// files is the decoded archive, nil when images are read from the work folder or a remote service.
func NewSession(list *models.PatientList, files Files) (*Session, error) {
	if list == nil || len(list.Patients) == 0 {
		return nil, ErrNoPatients
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	patients := list.Clone()
	if patients.WorkFolder == "" {
		patients.WorkFolder = uuid.NewString()
	}
	return &Session{
		ID:         uuid.NewString(),
		Mode:       ModeOf(patients),
		WorkFolder: patients.WorkFolder,
		CreatedAt:  time.Now(),
		patients:   patients,
		files:      files,
		tree:       NewTree(patients),
	}, nil
}

// Snapshot is an immutable view of a session handed to a step.
type Snapshot struct {
	Patients  *models.PatientList
	Backup    models.ContextData
	Committed *models.ContextData
	Preview   *Preview
}

// Update is what a step commits back: the series step commits patients, the context step a context.
type Update struct {
	Patients *models.PatientList
	Context  *models.ContextData
}

// Handoff is the exclusive ownership of a session by one step.
type Handoff struct {
	session  *Session
	step     Step
	snapshot Snapshot
	released bool
}

// Enter gives the session to step. It fails with ErrStepBusy while another handoff is active.
func (s *Session) Enter(step Step) (*Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != 0 {
		return nil, fmt.Errorf("%w: %s", ErrStepBusy, s.owner)
	}
	s.owner = step
	var committed *models.ContextData
	if s.committed != nil {
		c := *s.committed
		committed = &c
	}
	return &Handoff{
		session: s,
		step:    step,
		snapshot: Snapshot{
			Patients:  s.patients.Clone(),
			Backup:    s.backup,
			Committed: committed,
			Preview:   s.preview,
		},
	}, nil
}

// Owner returns the step currently holding the session, zero if none.
func (s *Session) Owner() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Close cancels the context step's lookups. A closed session never caches a selector again.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.selector != nil {
		s.selector.Close()
		s.selector = nil
	}
}

// Step returns the step owning the handoff.
func (h *Handoff) Step() Step {
	return h.step
}

// Snapshot returns the state of the session when the handoff was taken.
func (h *Handoff) Snapshot() Snapshot {
	return h.snapshot
}

// Commit writes the step's result back to the session.
//
// A context is always kept as backup and published as committed only when valid. New patients
// drop the cached selector since the source equipment may have changed.
func (h *Handoff) Commit(u Update) error {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.released {
		return ErrHandoffReleased
	}
	switch {
	case u.Patients != nil && h.step == StepSeries:
		if err := u.Patients.Validate(); err != nil {
			return err
		}
		s.patients = u.Patients.Clone()
		s.tree = NewTree(s.patients)
		if s.selector != nil {
			s.selector.Close()
			s.selector = nil
		}
		h.snapshot.Patients = s.patients.Clone()
	case u.Context != nil && h.step == StepContext:
		s.backup = *u.Context
		if u.Context.Valid() {
			c := *u.Context
			s.committed = &c
		} else {
			s.committed = nil
		}
		h.snapshot.Backup = s.backup
		h.snapshot.Committed = s.committed
	default:
		return errWrongStep
	}
	return nil
}

// Release returns the session. Releasing twice is a no-op.
func (h *Handoff) Release() {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	s.owner = 0
}

// Tree returns the series tree. Only the series step may browse it.
func (h *Handoff) Tree() (*Tree, error) {
	if h.step != StepSeries {
		return nil, errWrongStep
	}
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.released {
		return nil, ErrHandoffReleased
	}
	return s.tree, nil
}

// Preview loads the images of a series and keeps them as the session's preview.
// On failure the previous preview is kept.
func (h *Handoff) Preview(ctx context.Context, seriesUID string, fetcher ImageFetcher) (*Preview, error) {
	if h.step != StepSeries {
		return nil, errWrongStep
	}
	serie := FindSerie(h.snapshot.Patients, seriesUID)
	if serie == nil {
		return nil, ErrSerieNotFound
	}

	s := h.session
	s.mu.Lock()
	files, workFolder := s.files, s.WorkFolder
	s.mu.Unlock()

	p, err := LoadPreview(ctx, serie, workFolder, files, fetcher)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h.released {
		return nil, ErrHandoffReleased
	}
	s.preview = p
	h.snapshot.Preview = p
	return p, nil
}

// Image returns one image of a series without touching the session's preview.
func (h *Handoff) Image(ctx context.Context, seriesUID string, index int, fetcher ImageFetcher) ([]byte, error) {
	if h.step != StepSeries {
		return nil, errWrongStep
	}
	serie := FindSerie(h.snapshot.Patients, seriesUID)
	if serie == nil {
		return nil, ErrSerieNotFound
	}
	s := h.session
	s.mu.Lock()
	files, workFolder := s.files, s.WorkFolder
	s.mu.Unlock()
	return LoadImage(ctx, serie, index, workFolder, files, fetcher)
}

// Selector returns the context step's selector, building it on first use: studies and centers
// are loaded for the first patient's equipment, then the saved backup is replayed.
func (h *Handoff) Selector(ctx context.Context, backend Backend, cfg SelectorConfig) (*Selector, error) {
	if h.step != StepContext {
		return nil, errWrongStep
	}
	s := h.session
	s.mu.Lock()
	if h.released {
		s.mu.Unlock()
		return nil, ErrHandoffReleased
	}
	if s.selector != nil {
		sel := s.selector
		s.mu.Unlock()
		return sel, nil
	}
	s.mu.Unlock()

	patients := h.snapshot.Patients
	if len(patients.Patients) == 0 {
		return nil, ErrNoPatients
	}
	sel := NewSelector(backend, cfg)
	if _, err := sel.Load(ctx, s.Mode, FingerprintOf(patients.Patients[0].FirstEquipment())); err != nil {
		return nil, err
	}
	if !h.snapshot.Backup.Empty() {
		if err := sel.Restore(ctx, h.snapshot.Backup); err != nil {
			sel.Close()
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sel.Close()
		return nil, ErrSessionNotFound
	}
	if s.selector != nil {
		// another handoff built one meanwhile
		sel.Close()
		return s.selector, nil
	}
	s.selector = sel
	return sel, nil
}
