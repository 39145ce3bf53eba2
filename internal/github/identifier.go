package github

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Identifier names one pull request.
type Identifier struct {
	Owner  string
	Repo   string
	Number int
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s/%s/%d", id.Owner, id.Repo, id.Number)
}

var pullURLRe = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/pull/(\d+)`)

// ParseIdentifier accepts either "owner/repo/number" or a full pull request
// URL. Both forms resolve to the same Identifier.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)

	if m := pullURLRe.FindStringSubmatch(s); len(m) == 4 {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return Identifier{}, fmt.Errorf("invalid PR number in %q", s)
		}
		return Identifier{Owner: m[1], Repo: m[2], Number: n}, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err == nil && parts[0] != "" && parts[1] != "" && n > 0 {
			return Identifier{Owner: parts[0], Repo: parts[1], Number: n}, nil
		}
	}

	return Identifier{}, fmt.Errorf("cannot parse PR identifier %q: want owner/repo/number or a pull request URL", s)
}
