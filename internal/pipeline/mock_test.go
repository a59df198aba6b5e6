package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datagenie/internal/catalog"
	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/store"
)

// --- Oracle Mock ---

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Complete(ctx context.Context, req oracle.Request) (*oracle.Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oracle.Completion), args.Error(1)
}

// expect registers a reply for calls of stage whose last user turn
// contains substr.
func (m *mockOracle) expect(stage, substr, reply string) *mock.Call {
	return m.On("Complete", mock.Anything, mock.MatchedBy(func(r oracle.Request) bool {
		return r.Stage == stage && strings.Contains(lastUser(r), substr)
	})).Return(completion(reply), nil)
}

func (m *mockOracle) callsFor(stage string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == "Complete" && c.Arguments.Get(1).(oracle.Request).Stage == stage {
			n++
		}
	}
	return n
}

func lastUser(r oracle.Request) string {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Role == oracle.RoleUser {
			return r.Turns[i].Content
		}
	}
	return ""
}

func completion(text string) *oracle.Completion {
	return &oracle.Completion{
		Text:  text,
		Model: "claude-sonnet-4-5-20250929",
		Usage: oracle.Usage{InputTokens: 100, OutputTokens: 20},
	}
}

// --- Engine Mock ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Execute(ctx context.Context, statement string) (*model.Table, error) {
	args := m.Called(ctx, statement)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Table), args.Error(1)
}

func (m *mockEngine) Close() error {
	return nil
}

// --- Renderer Mock ---

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, spec model.VisualizationSpec, table *model.Table) (string, error) {
	args := m.Called(ctx, spec, table)
	return args.String(0), args.Error(1)
}

func (m *mockRenderer) BuildDashboard(ctx context.Context, title string, charts []model.ChartArtifact) (string, error) {
	args := m.Called(ctx, title, charts)
	return args.String(0), args.Error(1)
}

// --- Fixtures ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Oracle.Model = "claude-sonnet-4-5-20250929"
	cfg.Pipeline = config.PipelineConfig{
		SynthesisAttempts: 3,
		SampleRows:        2,
		PreviewRows:       5,
		Visualize:         true,
	}
	cfg.Dashboard = config.DashboardConfig{
		MinQuestions:   5,
		MaxQuestions:   7,
		MaxConcurrency: 3,
		Title:          "Executive Dashboard",
	}
	return cfg
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
name: AdventureWorks
tables:
  - name: fact_sales
    columns:
      - name: order_quantity
        type: integer
  - name: dim_customers
    columns:
      - name: customer_key
        type: integer
  - name: dim_products
    columns:
      - name: product_name
        type: varchar
`))
	require.NoError(t, err)
	return cat
}

type fixture struct {
	oracle   *mockOracle
	engine   *mockEngine
	renderer *mockRenderer
	store    store.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		oracle:   new(mockOracle),
		engine:   new(mockEngine),
		renderer: new(mockRenderer),
		store:    newTestStore(t),
	}
	f.pipeline = New(testConfig(), f.store, f.oracle, f.engine, f.renderer, testCatalog(t))
	return f
}

func table(columns []string, rows ...[]any) *model.Table {
	if rows == nil {
		rows = [][]any{}
	}
	return &model.Table{Columns: columns, Rows: rows}
}
