package main

import (
	"bytes"
	"encoding/binary"

	"github.com/asynclear-go/asynclear/internal/executor"
	"github.com/asynclear-go/asynclear/internal/fs"
	"github.com/asynclear-go/asynclear/internal/fs/handle"
	"github.com/asynclear-go/asynclear/internal/kerrno"
	"github.com/asynclear-go/asynclear/internal/logger"
	"github.com/asynclear-go/asynclear/internal/syscall"
)

// Linux RISC-V ABI syscall ids, the same numbers a trapping hart delivers
// in a7.
const (
	sysOpenat     = 56
	sysClose      = 57
	sysGetdents64 = 61
)

const (
	bootPathAt    = 0
	bootBufAt     = 256
	bootBufLen    = 4096
	bootArenaSize = 8192
)

// bootAddressSpace is a flat in-kernel arena standing in for the MMU-backed
// user address space the trap entry will eventually bind through
// syscall.AddressSpace: boot-time syscall traffic originates in kernel
// space, so pointer validation reduces to bounds checks on the arena.
type bootAddressSpace struct {
	arena []byte
}

func newBootAddressSpace(size int) *bootAddressSpace {
	return &bootAddressSpace{arena: make([]byte, size)}
}

func (a *bootAddressSpace) CheckBytes(ptr uintptr, n int) ([]byte, error) {
	if int(ptr)+n > len(a.arena) {
		return nil, kerrno.EFAULT
	}
	out := make([]byte, n)
	copy(out, a.arena[ptr:int(ptr)+n])
	return out, nil
}

func (a *bootAddressSpace) CheckBytesMut(ptr uintptr, n int) ([]byte, error) {
	return a.CheckBytes(ptr, n)
}

func (a *bootAddressSpace) WriteBack(ptr uintptr, buf []byte) error {
	if int(ptr)+len(buf) > len(a.arena) {
		return kerrno.EFAULT
	}
	copy(a.arena[ptr:], buf)
	return nil
}

func (a *bootAddressSpace) placeCString(ptr uintptr, s string) uintptr {
	copy(a.arena[ptr:], s)
	a.arena[int(ptr)+len(s)] = 0
	return ptr
}

// initProcess is pid 1 as the syscall layer sees it: an fd table, the root
// as cwd, and a Terminate that halts the kernel — there is nothing to fall
// back to once init dies.
type initProcess struct {
	fdTable *handle.FdTable
	cwd     *fs.DEntryDir
}

func newInitProcess(cwd *fs.DEntryDir) *initProcess {
	return &initProcess{fdTable: handle.NewFdTable(), cwd: cwd}
}

func (p *initProcess) Pid() int                 { return 1 }
func (p *initProcess) Name() string             { return "init" }
func (p *initProcess) FDTable() *handle.FdTable { return p.fdTable }
func (p *initProcess) Cwd() *fs.DEntryDir       { return p.cwd }

func (p *initProcess) Terminate(exitCode int) {
	logger.Error("init terminated with exit code %d, halting", exitCode)
	executor.RequestShutdown()
}

// bootTask is pid 1's boot sequence, driven through the syscall surface the
// way real user traffic will be: open the root directory, list it, log what
// the volume holds, and close it again. The trap entry that feeds user
// syscalls into the dispatcher is an external collaborator; until it is
// bound, this is the traffic that proves the mount serves syscalls.
type bootTask struct {
	dispatcher *syscall.Dispatcher
	proc       *initProcess
	space      *bootAddressSpace
}

func (b *bootTask) Poll(w *executor.Waker) (struct{}, bool) {
	b.run()
	return struct{}{}, true
}

func (b *bootTask) run() {
	path := b.space.placeCString(bootPathAt, "/")
	var args [6]uintptr
	dirFD := syscall.AtFDCWD
	args[0] = uintptr(dirFD)
	args[1] = path
	args[2] = uintptr(handle.RDONLY | handle.DIRECTORY)
	fd := b.dispatcher.Dispatch(b.proc, sysOpenat, args)
	if fd < 0 {
		logger.Error("boot: open /: %d", fd)
		return
	}

	args = [6]uintptr{uintptr(fd), bootBufAt, bootBufLen}
	n := b.dispatcher.Dispatch(b.proc, sysGetdents64, args)
	if n < 0 {
		logger.Error("boot: getdents64 /: %d", n)
	} else {
		for _, name := range parseDirentNames(b.space.arena[bootBufAt : bootBufAt+int(n)]) {
			logger.Info("boot: / contains %s", name)
		}
	}

	args = [6]uintptr{uintptr(fd)}
	if ret := b.dispatcher.Dispatch(b.proc, sysClose, args); ret < 0 {
		logger.Error("boot: close /: %d", ret)
	}
}

// parseDirentNames walks the packed linux_dirent64 records getdents64 wrote
// into buf, pulling out each entry's name.
func parseDirentNames(buf []byte) []string {
	var names []string
	for off := 0; off+19 < len(buf); {
		recLen := int(binary.LittleEndian.Uint16(buf[off+16 : off+18]))
		if recLen == 0 || off+recLen > len(buf) {
			break
		}
		name := buf[off+19 : off+recLen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		names = append(names, string(name))
		off += recLen
	}
	return names
}
