// Package update drives jobs from variable resolution through download to
// installation, one job at a time or as a batch.
package update

// Phase is a step of updating one job.
type Phase int

// Update phases
const (
	// PhaseChecking resolves variables and the download URL
	PhaseChecking Phase = iota
	// PhaseDownloading fetches the artifact
	PhaseDownloading
	// PhaseInstalling runs the setup instructions
	PhaseInstalling
)

func (p Phase) String() string {
	switch p {
	case PhaseDownloading:
		return "downloading"
	case PhaseInstalling:
		return "installing"
	default:
		return "checking"
	}
}

// Indeterminate is the Percent of a phase with unknown length.
const Indeterminate = -1

// Progress reports the phase of a job and its completion in percent.
type Progress struct {
	Job     string
	Phase   Phase
	Percent int
}

// ProgressFunc receives progress updates. It is called on the worker
// running the update.
type ProgressFunc func(Progress)
