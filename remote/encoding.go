package remote

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// decodeBody reads a response body, undoing gzip, brotli or deflate
// Content-Encoding. Unknown encodings are read as-is; a source that lies
// about its encoding fails JSON validation later instead of here.
func decodeBody(res *http.Response) ([]byte, error) {
	defer res.Body.Close()

	switch res.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzipReader.Close()

		body, err := io.ReadAll(gzipReader)
		if err != nil {
			return nil, fmt.Errorf("reading gzip content: %w", err)
		}
		return body, nil
	case "br":
		body, err := io.ReadAll(brotli.NewReader(res.Body))
		if err != nil {
			return nil, fmt.Errorf("reading brotli content : %w", err)
		}
		return body, nil
	case "deflate":
		flateReader := flate.NewReader(res.Body)
		defer flateReader.Close()

		body, err := io.ReadAll(flateReader)
		if err != nil {
			return nil, fmt.Errorf("reading deflate content: %w", err)
		}
		return body, nil
	default:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return body, nil
	}
}
