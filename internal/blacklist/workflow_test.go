package blacklist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
)

type RefreshWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env   *testsuite.TestWorkflowEnvironment
	store *MemoryStore
}

func (s *RefreshWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.store = NewMemory()
}

func (s *RefreshWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *RefreshWorkflowSuite) register(loader Loader) {
	Register(s.env, &Activities{Refresher: NewRefresher(loader, s.store, nil)})
}

func (s *RefreshWorkflowSuite) TestImports() {
	s.register(&stubLoader{snap: NewSnapshot("u", importAt, []string{"AAA010101AAA", "BBB020202BBB"})})

	s.env.ExecuteWorkflow(RefreshWorkflowName, RefreshInput{Force: true})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var res RefreshResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.False(res.Skipped)
	s.Equal(2, res.Import.TotalCount)

	ok, err := s.store.Contains(context.Background(), "BBB020202BBB")
	s.NoError(err)
	s.True(ok)
}

func (s *RefreshWorkflowSuite) TestEmptySnapshotIsNotRetried() {
	loader := &stubLoader{snap: Snapshot{SourceURL: "u"}}
	s.register(loader)

	s.env.ExecuteWorkflow(RefreshWorkflowName, RefreshInput{Force: true})

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.Equal(1, loader.calls)
}

func TestRefreshWorkflowSuite(t *testing.T) {
	suite.Run(t, new(RefreshWorkflowSuite))
}
