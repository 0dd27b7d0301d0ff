package processor

// Stage names the step a document is in.
type Stage string

const (
	StageLoading     Stage = "loading"
	StageNormalizing Stage = "normalizing"
	StageComposing   Stage = "composing"
	StageStoring     Stage = "storing"
	StageCompleted   Stage = "completed"
)

// ProgressEvent reports how far a run has got. Fraction covers the whole
// run, so a batch of four documents is half done when the second document
// has composed its last page.
type ProgressEvent struct {
	JobID         string  `json:"jobId"`
	Filename      string  `json:"filename"`
	Stage         Stage   `json:"stage"`
	Document      int     `json:"document"`
	DocumentCount int     `json:"documentCount"`
	Page          int     `json:"page,omitempty"`
	PageCount     int     `json:"pageCount,omitempty"`
	Fraction      float64 `json:"fraction"`
}

// Percent is Fraction as a whole percentage.
func (e ProgressEvent) Percent() int {
	return int(e.Fraction*100 + 0.5)
}

// ProgressObserver receives progress events. Observers are called on the
// processing goroutine and should return quickly.
type ProgressObserver interface {
	OnProgress(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) OnProgress(e ProgressEvent) { f(e) }

// tracker positions a single document inside a run.
type tracker struct {
	observer ProgressObserver
	jobID    string
	filename string
	index    int
	count    int
}

// fraction is (index + done) / count, with done the share of the current
// document that is finished.
func (t tracker) fraction(done float64) float64 {
	if t.count <= 0 {
		return 0
	}
	f := (float64(t.index) + done) / float64(t.count)
	if f > 1 {
		f = 1
	}
	return f
}

func (t tracker) stage(s Stage, done float64) {
	if t.observer == nil {
		return
	}
	t.observer.OnProgress(ProgressEvent{
		JobID:         t.jobID,
		Filename:      t.filename,
		Stage:         s,
		Document:      t.index + 1,
		DocumentCount: t.count,
		Fraction:      t.fraction(done),
	})
}

// page reports a composed page; page is 1-based.
func (t tracker) page(page, pageCount int) {
	if t.observer == nil || pageCount <= 0 {
		return
	}
	t.observer.OnProgress(ProgressEvent{
		JobID:         t.jobID,
		Filename:      t.filename,
		Stage:         StageComposing,
		Document:      t.index + 1,
		DocumentCount: t.count,
		Page:          page,
		PageCount:     pageCount,
		Fraction:      t.fraction(float64(page) / float64(pageCount)),
	})
}
