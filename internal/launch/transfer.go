package launch

import (
	"encoding/json"
	"io"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/spec"
)

// EncodeSpec serializes a ContainerSpec for the child process. The child
// is a re-exec of this same binary under new namespace flags, not a bare
// clone(2) child sharing the parent's address space, so the spec has to
// cross an inherited pipe rather than a pointer.
func EncodeSpec(w io.Writer, s *spec.ContainerSpec) error {
	if err := json.NewEncoder(w).Encode(s); err != nil {
		return cerr.Wrap(cerr.IO, err)
	}
	return nil
}

// DecodeSpec reads back what EncodeSpec wrote.
func DecodeSpec(r io.Reader) (*spec.ContainerSpec, error) {
	var s spec.ContainerSpec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, cerr.Wrap(cerr.IO, err)
	}
	return &s, nil
}
