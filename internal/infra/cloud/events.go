package cloud

import (
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// ObjectKey returns the decoded key of an object named in a storage event.
// Event keys arrive URL-encoded.
func ObjectKey(obj events.S3Object) (string, error) {
	if obj.URLDecodedKey != "" {
		return obj.URLDecodedKey, nil
	}
	key, err := url.QueryUnescape(obj.Key)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", obj.Key, err)
	}
	return key, nil
}
