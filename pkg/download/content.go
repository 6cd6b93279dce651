package download

import (
	"io"

	"github.com/ajitpratap0/nebula-bulk/pkg/compression"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// decodeBody undoes a transfer-level Content-Encoding while the payload
// streams. Identity bodies are returned unchanged.
func decodeBody(p *Payload) (io.ReadCloser, error) {
	alg, err := compression.ParseAlgorithm(p.ContentEncoding)
	if err != nil {
		return nil, err
	}
	body, err := compression.NewReader(alg, p.Body)
	if err != nil {
		return nil, classifyHeaderError(err, string(alg))
	}
	return body, nil
}

// classifyHeaderError separates a corrupt encoding header, which the remote
// produced, from a failure to receive it.
func classifyHeaderError(err error, enc string) error {
	if compression.IsHeaderError(err) {
		return errors.Wrap(err, errors.ErrorTypeRemoteResult, "invalid "+enc+" payload")
	}
	return errors.Wrap(err, errors.ErrorTypeTransfer, "failed to read "+enc+" header")
}
