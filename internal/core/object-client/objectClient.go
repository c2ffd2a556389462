package objectclient

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/markdave123-py/prescodata/internal/core"
)

var _ core.ObjectClient = (*S3Client)(nil)

// objectURL is the address of key. Custom endpoints use path-style URLs.
func objectURL(endpoint, bucket, region, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint, "/"), bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, escaped)
}
