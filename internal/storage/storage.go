// Package storage uploads resume files and returns the URL they are reachable at.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultBaseURL is used by Placeholder when no base URL is configured.
const DefaultBaseURL = "https://your-storage-service.com"

// Object is one uploaded resume file.
type Object struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Placeholder does not store anything and derives the URL from the file name.
type Placeholder struct {
	BaseURL string
}

func (p Placeholder) Upload(_ context.Context, obj Object) (string, error) {
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	name := safeName(obj.Filename)
	if name == "" {
		return "", fmt.Errorf("upload: empty file name")
	}
	return base + "/resumes/" + url.PathEscape(name), nil
}

// safeName drops any directory part a client may have sent with the file name.
func safeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSpace(name)
}
