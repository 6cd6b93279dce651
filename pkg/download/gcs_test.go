package download

import (
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

func TestClassifyGCSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorType
	}{
		{"object missing", storage.ErrObjectNotExist, errors.ErrorTypeRemoteResult},
		{"bucket missing", fmt.Errorf("open: %w", storage.ErrBucketNotExist), errors.ErrorTypeRemoteResult},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}, errors.ErrorTypeRemoteResult},
		{"other", fmt.Errorf("dial tcp: connection refused"), errors.ErrorTypeTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.TypeOf(classifyGCSError(tt.err)))
		})
	}

	code, ok := StatusCode(classifyGCSError(&googleapi.Error{Code: http.StatusForbidden}))
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, code)
}
