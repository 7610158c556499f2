package model

// JobWorkSummary is the derived per-node summary of work performed,
// recomputed from git diffs. It is presentation data, never authoritative
// execution state.
type JobWorkSummary struct {
	// ProducerID names the node this summary describes.
	ProducerID string `json:"producer_id"`

	// Commits is the number of commits the node contributed.
	Commits int `json:"commits"`

	// FilesAdded is the count of files the node's commits added.
	FilesAdded int `json:"files_added"`

	// FilesModified is the count of files the node's commits modified.
	FilesModified int `json:"files_modified"`

	// FilesDeleted is the count of files the node's commits deleted.
	FilesDeleted int `json:"files_deleted"`
}

// WorkSummary aggregates job summaries across a plan.
type WorkSummary struct {
	// Jobs holds the per-node summaries, in topological order.
	Jobs []JobWorkSummary `json:"jobs"`

	// TotalCommits is the sum of per-job commit counts.
	TotalCommits int `json:"total_commits"`

	// TotalFilesAdded is the sum of per-job added-file counts.
	TotalFilesAdded int `json:"total_files_added"`

	// TotalFilesModified is the sum of per-job modified-file counts.
	TotalFilesModified int `json:"total_files_modified"`

	// TotalFilesDeleted is the sum of per-job deleted-file counts.
	TotalFilesDeleted int `json:"total_files_deleted"`
}

// AddJob appends a job summary and folds it into the totals.
func (w *WorkSummary) AddJob(job JobWorkSummary) {
	w.Jobs = append(w.Jobs, job)
	w.TotalCommits += job.Commits
	w.TotalFilesAdded += job.FilesAdded
	w.TotalFilesModified += job.FilesModified
	w.TotalFilesDeleted += job.FilesDeleted
}
