package transfer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateID checks that an endpoint or task ID is a dashed UUID before it
// is put in a request path. Other spellings must go through CanonicalID.
func ValidateID(id string) error {
	if _, err := CanonicalID(id); err != nil {
		return err
	}

	if len(id) != len(uuid.Nil.String()) {
		return fmt.Errorf("transfer: id %q is not in canonical form", id)
	}

	return nil
}

// CanonicalID returns id in the lowercase dashed form the service reports.
// Braced, urn:uuid: and undashed spellings are accepted.
func CanonicalID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("transfer: invalid id %q: %w", id, err)
	}

	return u.String(), nil
}

// EndpointPath is an endpoint ID paired with an absolute path on it.
type EndpointPath struct {
	Endpoint string
	Path     string
}

func (e EndpointPath) String() string {
	return e.Endpoint + ":" + e.Path
}

// ParseEndpointPath splits "ENDPOINT:/path" into its parts. The endpoint part
// is resolved through aliases first, so "tutorial:/share" works when
// aliases maps "tutorial" to a UUID. A missing path means "/~/".
func ParseEndpointPath(s string, aliases map[string]string) (EndpointPath, error) {
	ep, path, _ := strings.Cut(s, ":")
	if ep == "" {
		return EndpointPath{}, fmt.Errorf("transfer: missing endpoint in %q", s)
	}

	if id, ok := aliases[ep]; ok {
		ep = id
	}

	ep, err := CanonicalID(ep)
	if err != nil {
		return EndpointPath{}, err
	}

	if path == "" {
		path = "/~/"
	}

	return EndpointPath{Endpoint: ep, Path: path}, nil
}

// Web app links printed for users to follow a task in a browser.
const (
	activityURL = "https://www.globus.org/app/activity/"
	fileManager = "https://globus.org/app/transfer"
)

// ActivityURL returns the web page showing a task's progress.
func ActivityURL(taskID string) string {
	return activityURL + taskID
}

// TransferPageURL returns the web file manager opened on both sides of a
// transfer.
func TransferPageURL(src, dst EndpointPath) string {
	q := url.Values{}
	q.Set("origin_id", src.Endpoint)
	q.Set("origin_path", src.Path)
	q.Set("destination_id", dst.Endpoint)
	q.Set("destination_path", dst.Path)

	return fileManager + "?" + q.Encode()
}
