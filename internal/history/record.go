package history

import (
	"github.com/drydock-sh/shakedown/internal/pipeline"
)

// Record writes a finished pipeline result to the store: the run row,
// its step rows, and the terminal status. Recording is meant to be
// best-effort; callers log the returned error and move on.
func Record(s *Store, res *pipeline.Result) error {
	run := &Run{
		ID:          res.ID,
		Image:       res.Image,
		Container:   res.Container,
		CommitSHA:   res.Snapshot.SHA,
		Branch:      res.Snapshot.Branch,
		Dirty:       res.Snapshot.Dirty,
		TriggeredBy: res.TriggeredBy,
		Status:      RunStatusRunning,
		StartedAt:   res.StartedAt,
	}
	if err := s.CreateRun(run); err != nil {
		return err
	}

	steps := make([]StepRecord, len(res.Steps))
	for i, step := range res.Steps {
		rec := StepRecord{
			Name:       step.Name,
			Status:     string(step.Status),
			DurationMS: step.Duration.Milliseconds(),
		}
		if step.Err != nil {
			rec.Error = step.Err.Error()
		}
		steps[i] = rec
	}
	if err := s.RecordSteps(run.ID, steps); err != nil {
		return err
	}

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	return s.CompleteRun(run.ID, string(res.Status()), errText)
}
