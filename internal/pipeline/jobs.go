package pipeline

import (
	"sync"
	"time"
)

// JobStatus represents the state of a narration job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusParsing   JobStatus = "parsing"
	StatusNarrating JobStatus = "narrating"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// Settings are the per-upload speech options.
type Settings struct {
	Voice         string  `json:"voice"`
	Speed         float64 `json:"speed"`
	Format        string  `json:"format"`
	MaxCharacters int     `json:"max_characters"`
}

// Job tracks one uploaded document through narration.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`
	Name     string `json:"name"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Settings Settings `json:"settings"`
	Progress Progress `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	root     string
	result   DocResult
	errors   []string
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs and returns them so callers can drop their
// output.
func (s *JobStore) Cleanup() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var expired []*Job
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
			expired = append(expired, job)
		}
	}
	return expired
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// SetProgress stores the latest per-chunk progress.
func (j *Job) SetProgress(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = p
	j.UpdatedAt = time.Now()
}

// SetResult stores the finished document result.
func (j *Job) SetResult(r DocResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = r
	j.UpdatedAt = time.Now()
}

// AudioPath returns the narrated file, or "" while none exists.
func (j *Job) AudioPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result.Audio
}

// SetOutputDir records the directory the job writes under.
func (j *Job) SetOutputDir(dir string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.root = dir
}

// OutputDir returns the directory the job writes under.
func (j *Job) OutputDir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.root
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobProgress is the JSON view of a job's progress.
type JobProgress struct {
	ExpectedChunks int      `json:"expected_chunks"`
	Chunks         int      `json:"chunks"`
	Fragments      int      `json:"fragments"`
	FailedSplits   int      `json:"failed_splits"`
	Resume         string   `json:"resume"`
	Errors         []string `json:"errors"`
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string      `json:"job_id"`
	Status   JobStatus   `json:"status"`
	Phase    string      `json:"phase"`
	Filename string      `json:"filename"`
	Name     string      `json:"name"`
	Settings Settings    `json:"settings"`
	Progress JobProgress `json:"progress"`
	Merged   bool        `json:"merged"`
	Audio    bool        `json:"audio_ready"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.errors...)
	return JobSnapshot{
		ID:       j.ID,
		Status:   j.Status,
		Phase:    j.Phase,
		Filename: j.Filename,
		Name:     j.Name,
		Settings: j.Settings,
		Progress: JobProgress{
			ExpectedChunks: j.Progress.Expected,
			Chunks:         j.Progress.Chunks,
			Fragments:      j.Progress.Fragments,
			FailedSplits:   j.result.FailedSplits,
			Resume:         j.Progress.Resume.String(),
			Errors:         errs,
		},
		Merged: j.result.Merged != "",
		Audio:  j.result.Audio != "",
	}
}
