package syscall

import (
	"bytes"

	"github.com/asynclear-go/asynclear/internal/kerrno"
)

// AddressSpace is the user/kernel pointer-validation boundary: the trap
// handler and page tables that actually know whether a user virtual address
// is mapped and accessible. Out of scope for this repository (the MMU/
// page-table module is a named external collaborator, spec §1) — named here
// only as the interface sys_* handlers validate pointers through, mirroring
// the original's user_check::{UserCheck, UserCheckMut} crate.
type AddressSpace interface {
	// CheckBytes validates a read-only user range of length n starting at
	// ptr, returning a copy kernel code can safely read.
	CheckBytes(ptr uintptr, n int) ([]byte, error)

	// CheckBytesMut validates a writable user range of length n, returning a
	// buffer that WriteBack copies back into user memory.
	CheckBytesMut(ptr uintptr, n int) ([]byte, error)

	// WriteBack copies buf back to the user range previously validated by
	// CheckBytesMut at ptr.
	WriteBack(ptr uintptr, buf []byte) error
}

// UserCheck wraps a read-only user pointer/length pair, unvalidated until
// one of its Check* methods is called — matching the original's
// UserCheck<T>, which likewise defers the actual access until check_cstr/
// check_slice/check_ptr.
type UserCheck struct {
	space AddressSpace
	ptr   uintptr
	len   int
}

// NewUserCheck wraps ptr/len as a not-yet-validated read-only user range.
func NewUserCheck(space AddressSpace, ptr uintptr, length int) UserCheck {
	return UserCheck{space: space, ptr: ptr, len: length}
}

// CheckCStr validates and copies a NUL-terminated string out of user
// memory, mirroring check_cstr's EFAULT-on-fault contract.
func (u UserCheck) CheckCStr() (string, error) {
	raw, err := u.space.CheckBytes(u.ptr, u.len)
	if err != nil {
		return "", kerrno.EFAULT
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}

// CheckSlice validates and copies out a read-only byte slice.
func (u UserCheck) CheckSlice() ([]byte, error) {
	raw, err := u.space.CheckBytes(u.ptr, u.len)
	if err != nil {
		return nil, kerrno.EFAULT
	}
	return raw, nil
}

// UserCheckMut wraps a writable user pointer/length pair.
type UserCheckMut struct {
	space AddressSpace
	ptr   uintptr
	len   int
}

// NewUserCheckMut wraps ptr/len as a not-yet-validated writable user range.
func NewUserCheckMut(space AddressSpace, ptr uintptr, length int) UserCheckMut {
	return UserCheckMut{space: space, ptr: ptr, len: length}
}

// CheckSliceMut validates a writable user range. Callers must pass the
// returned buffer to WriteBack once they are done filling it.
func (u UserCheckMut) CheckSliceMut() ([]byte, error) {
	buf, err := u.space.CheckBytesMut(u.ptr, u.len)
	if err != nil {
		return nil, kerrno.EFAULT
	}
	return buf, nil
}

// WriteBack persists buf to the user range this UserCheckMut names.
func (u UserCheckMut) WriteBack(buf []byte) error {
	if err := u.space.WriteBack(u.ptr, buf); err != nil {
		return kerrno.EFAULT
	}
	return nil
}
