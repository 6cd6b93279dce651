// Package testutil provides testing utilities for nebula-bulk
package testutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// AccountHeader is the header line of the generated Account exports.
const AccountHeader = "\"Id\",\"IsDeleted\"\n"

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AccountID returns the Id of generated row i.
func AccountID(i int) string {
	return fmt.Sprintf("0014W%013d", i)
}

// WriteAccountExport writes a Salesforce-style Account export of n rows to w.
func WriteAccountExport(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, AccountHeader); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprintf(bw, "\"%s\",\"false\"\n", AccountID(i)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ExportHandler streams an Account export of n rows without holding it in
// memory.
func ExportHandler(n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_ = WriteAccountExport(w, n)
	}
}

// CSVServer starts a server answering every request with body. It is closed
// when the test ends.
func CSVServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// AssertNoStagingFiles fails the test if dir contains any file.
func AssertNoStagingFiles(t *testing.T, dir string) bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return assert.Empty(t, names, "staging files left behind in %s", dir)
}
