package scheduler

import "fmt"

// Registry holds the set of jobs the coordinator evaluates, in
// registration order.
type Registry struct {
	jobs   []*Job
	byName map[string]*Job
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Job),
	}
}

// Register adds a job. Names must be unique and every job needs a Due
// check and a Run function.
func (r *Registry) Register(job *Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Due == nil {
		return fmt.Errorf("job %s has no due check", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	if _, exists := r.byName[job.Name]; exists {
		return fmt.Errorf("job %s is already registered", job.Name)
	}

	r.jobs = append(r.jobs, job)
	r.byName[job.Name] = job
	return nil
}

// Jobs returns all registered jobs in registration order.
func (r *Registry) Jobs() []*Job {
	return r.jobs
}

// Get looks a job up by name.
func (r *Registry) Get(name string) (*Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}
