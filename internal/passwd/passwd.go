// Package passwd parses an image's /etc/passwd and resolves a
// spec.UserSelector against it, synthesizing records for selectors that
// name a uid but no matching entry exists.
package passwd

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/spec"
)

// User is one resolved /etc/passwd record.
type User struct {
	Username string
	UID      int32
	GID      *int32
	Home     string
}

// ParseFile reads a passwd-formatted file, keyed by uid. Lines with fewer
// than six colon-separated fields are ignored. A missing file yields an
// empty map, not an error: an image with no /etc/passwd just resolves no
// named users, which is only a problem if a selector is actually given.
func ParseFile(path string) (map[int32]User, error) {
	users := make(map[int32]User)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return users, nil
		}
		return nil, cerr.Wrapf(cerr.IO, err, "open %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Split(line, ":")
		if len(parts) < 6 {
			continue
		}

		uid, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			continue
		}
		gid, err := strconv.ParseInt(parts[3], 10, 32)
		if err != nil {
			continue
		}

		gid32 := int32(gid)
		users[int32(uid)] = User{
			Username: parts[0],
			UID:      int32(uid),
			GID:      &gid32,
			Home:     parts[5],
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, cerr.Wrapf(cerr.IO, err, "read %q", path)
	}

	return users, nil
}

// Resolve applies a UserSelector's resolution policy against a parsed
// passwd table:
//   - Name(s): exact username match or InvalidUser.
//   - Id(n): uid match, else synthesize {"unknown", n, nil, /root}.
//   - IdAndGroupId(u,g): exact (uid,gid) match, else synthesize
//     {"unknown", u, g, /root}.
func Resolve(sel spec.UserSelector, users map[int32]User) (User, error) {
	switch sel.Kind {
	case spec.UserByName:
		for _, u := range users {
			if u.Username == sel.Name {
				return u, nil
			}
		}
		return User{}, cerr.New(cerr.InvalidUser, sel.String())

	case spec.UserByID:
		if u, ok := users[sel.UID]; ok {
			return u, nil
		}
		return User{Username: "unknown", UID: sel.UID, GID: nil, Home: "/root"}, nil

	case spec.UserByIDAndGroupID:
		if u, ok := users[sel.UID]; ok && u.GID != nil && *u.GID == sel.GID {
			return u, nil
		}
		gid := sel.GID
		return User{Username: "unknown", UID: sel.UID, GID: &gid, Home: "/root"}, nil

	default:
		return User{}, cerr.New(cerr.Input, "unknown user selector kind")
	}
}
