package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/datagenie/internal/oracle"
)

// Stage failure sentinels. Expected failure modes (synthesis exhaustion,
// execution failure, empty results) are recorded as state outcomes; only
// ErrClassificationParse and context cancellation are returned from Run.
var (
	ErrClassificationParse      = eris.New("classification output could not be parsed")
	ErrMalformedModelOutput     = oracle.ErrMalformedOutput
	ErrSynthesisExhausted       = eris.New("sql synthesis exhausted")
	ErrInvalidFieldMapping      = eris.New("visualization fields are not result columns")
	ErrVisualizationUnavailable = eris.New("visualization unavailable")
	ErrDecomposition            = eris.New("dashboard decomposition failed")
	ErrDashboardEmpty           = eris.New("dashboard produced no charts")
)
