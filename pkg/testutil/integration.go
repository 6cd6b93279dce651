package testutil

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite provides a staging directory and an export server
// shared by the tests of a suite.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	server    *httptest.Server
	startTime time.Time

	// Rows is the size of the export served by ServerURL
	Rows int
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "nebula-bulk-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir

	if s.Rows == 0 {
		s.Rows = 10_000
	}
	s.server = httptest.NewServer(ExportHandler(s.Rows))

	s.T().Logf("Integration test suite started in %s", s.tempDir)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.server != nil {
		s.server.Close()
	}
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}

	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// TearDownTest checks that no test left a staging file behind.
func (s *IntegrationTestSuite) TearDownTest() {
	AssertNoStagingFiles(s.T(), s.tempDir)
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the staging directory
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// ServerURL returns the URL of the export server
func (s *IntegrationTestSuite) ServerURL() string {
	return s.server.URL
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
