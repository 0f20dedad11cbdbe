package common

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

// The error names follow the Minix errno list. Each one carries a platform
// error code so callers that only care about the category can switch on
// errors.GetCode instead of comparing sentinels.

var (
	EBADF        = errors.New(errors.CodeInvalidInput, "Bad file number")
	EBUSY        = errors.New(errors.CodeConflict, "Resource busy")
	ECORRUPT     = errors.New(errors.CodeInternal, "Structure needs cleaning")
	EEXIST       = errors.New(errors.CodeAlreadyExists, "File exists")
	EINVAL       = errors.New(errors.CodeInvalidInput, "Invalid argument")
	EIO          = errors.New(errors.CodeInternal, "I/O error")
	EISDIR       = errors.New(errors.CodeInvalidInput, "Is a directory")
	ELOOP        = errors.New(errors.CodeInvalidInput, "Too many levels of symbolic links")
	ENAMETOOLONG = errors.New(errors.CodeInvalidInput, "File name too long")
	ENOENT       = errors.New(errors.CodeNotFound, "No such file or directory")
	ENOSPC       = errors.New(errors.CodeInternal, "No space left on device")
	ENOTDIR      = errors.New(errors.CodeInvalidInput, "Not a directory")
	ENOTEMPTY    = errors.New(errors.CodeConflict, "Directory not empty")
)

// DeviceError wraps a failure reported by a block device so that it matches
// EIO. Errors that are already part of the taxonomy pass through unchanged.
func DeviceError(err error, op string, addr uint32) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, EIO) || errors.Is(err, EINVAL) || errors.Is(err, EBADF) {
		return err
	}
	return errors.WrapWithContext(EIO, errors.CodeInternal, fmt.Sprintf("%s sector %d: %v", op, addr, err),
		map[string]interface{}{"sector": addr, "op": op})
}
