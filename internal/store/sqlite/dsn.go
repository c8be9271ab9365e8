package sqlite

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ParseDSN converts a sqlite:// DSN from the project config into the path
// string the driver expects. Relative paths gain an explicit ./ prefix so the
// driver resolves them against the working directory rather than guessing.
func ParseDSN(dsn string) (string, error) {
	rest, ok := strings.CutPrefix(dsn, "sqlite://")
	if !ok {
		return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}

	if rest == ":memory:" {
		return ":memory:", nil
	}

	path, query, hasQuery := strings.Cut(rest, "?")

	path, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("unescaping path: %w", err)
	}
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}

	if hasQuery {
		return path + "?" + query, nil
	}
	return path, nil
}
