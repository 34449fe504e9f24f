// SPDX-License-Identifier: AGPL-3.0-only
package links

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrNoLinks = errors.New("no links found")

// ReadLinks returns the trimmed non-blank lines of r.
func ReadLinks(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)

	var out []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}

	if len(out) == 0 {
		return nil, ErrNoLinks
	}

	return out, nil
}

func ReadLinksFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("links file %q not found, create it with one link per line", path)
		}
		return nil, err
	}
	defer f.Close()

	out, err := ReadLinks(f)
	if errors.Is(err, ErrNoLinks) {
		return nil, fmt.Errorf("links file %q is empty: %w", path, err)
	}
	return out, err
}
