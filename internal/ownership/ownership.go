package ownership

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// Identity is a resolved Unix user: numeric UID plus the primary GID.
type Identity struct {
	UID int
	GID int
}

// Lookup resolves a username to its numeric identity.
func Lookup(username string) (Identity, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user %q: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("non-numeric uid %q for user %q: %w", u.Uid, username, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("non-numeric gid %q for user %q: %w", u.Gid, username, err)
	}
	return Identity{UID: uid, GID: gid}, nil
}

// Applier assigns filesystem ownership and permissions. It exists as an
// interface so the setup sequence can be exercised in tests without
// requiring root.
type Applier interface {
	// Apply sets owner and mode on a single path.
	Apply(path string, id Identity, mode os.FileMode) error

	// ApplyRecursive sets owner and mode on root and everything below it.
	ApplyRecursive(root string, id Identity, mode os.FileMode) error
}

// UnixApplier applies ownership natively via chown/chmod syscalls.
type UnixApplier struct{}

func (UnixApplier) Apply(path string, id Identity, mode os.FileMode) error {
	if err := os.Chown(path, id.UID, id.GID); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (a UnixApplier) ApplyRecursive(root string, id Identity, mode os.FileMode) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return a.Apply(path, id, mode)
	})
}
