package pipeline

import "github.com/sells-group/datagenie/internal/model"

// stage names the next step the router hands a state to.
type stage string

const (
	stageClassify   stage = "classify"
	stageSynthesize stage = "synthesize"
	stageExecute    stage = "execute"
	stageVisualize  stage = "visualize"
	stageDashboard  stage = "dashboard"
	stageDone       stage = "done"
)

// route picks the next stage from what the state already holds. It never
// revisits a stage whose output is present, so every run terminates.
func route(state model.PipelineState, visualize bool) stage {
	switch {
	case state.Done():
		return stageDone
	case state.Classification == nil:
		return stageClassify
	case !state.Classification.Accepted():
		return stageDone
	case state.Classification.WantsDashboard:
		if state.Dashboard == nil {
			return stageDashboard
		}
		return stageDone
	case state.SQL == nil:
		return stageSynthesize
	case state.Execution == nil:
		return stageExecute
	case state.Execution.Succeeded() && wantsChart(state, visualize):
		return stageVisualize
	default:
		return stageDone
	}
}

func wantsChart(state model.PipelineState, visualize bool) bool {
	return visualize &&
		state.Classification.WantsVisualization &&
		state.Visualization == nil &&
		state.VisualizationError == ""
}

// runStatus is the run status reported while a stage is in progress.
func (s stage) runStatus() model.RunStatus {
	switch s {
	case stageClassify:
		return model.RunStatusClassifying
	case stageSynthesize:
		return model.RunStatusSynthesizing
	case stageExecute:
		return model.RunStatusExecuting
	case stageVisualize:
		return model.RunStatusVisualizing
	case stageDashboard:
		return model.RunStatusDashboard
	default:
		return model.RunStatusComplete
	}
}
