package syscall

import (
	"encoding/binary"
	"strings"

	"github.com/asynclear-go/asynclear/internal/fs"
	"github.com/asynclear-go/asynclear/internal/fs/handle"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
)

// resolveStartDir implements spec §4.4's resolve_path_with_dir_fd: pick the
// directory a path resolves against, honouring an absolute path, AT_FDCWD,
// or an explicit directory fd from the calling process's fd table. Grounded
// on syscall/fs.rs::resolve_path_with_dir_fd.
func (d *Dispatcher) resolveStartDir(proc Process, path string, dirFD int) (*fs.DEntryDir, error) {
	if strings.HasPrefix(path, "/") {
		return d.VFS.Root(), nil
	}
	if dirFD == AtFDCWD {
		return proc.Cwd(), nil
	}

	desc, err := proc.FDTable().Get(dirFD)
	if err != nil {
		return nil, err
	}
	if desc.File.Dir == nil {
		return nil, kerrno.ENOTDIR
	}
	return desc.File.Dir, nil
}

// sys_ioctl (id 29): must fail ENOTTY unless fd names a character device.
// This core has no character devices, so an open fd always gets ENOTTY and
// an fd that is not open gets EBADF; there is no device Ioctl to delegate to.
func (d *Dispatcher) sysIoctl(proc Process, fd int, request, argp uintptr) (int64, error) {
	if _, err := proc.FDTable().Get(fd); err != nil {
		return 0, err
	}
	return 0, kerrno.ENOTTY
}

// sys_openat (id 56).
func (d *Dispatcher) sysOpenat(proc Process, dirFD int, pathCheck UserCheck, flags uint32, mode uint32) (int64, error) {
	path, err := pathCheck.CheckCStr()
	if err != nil {
		return 0, err
	}
	of := handle.OpenFlags(flags)

	startDir, err := d.resolveStartDir(proc, path, dirFD)
	if err != nil {
		return 0, err
	}
	p2i, err := fs.PathWalk(startDir, path)
	if err != nil {
		return 0, err
	}

	entry, lookupErr := p2i.Dir.Lookup(p2i.LastComponent)
	if lookupErr == nil {
		if of.Contains(handle.CREATE | handle.EXCL) {
			return 0, kerrno.EEXIST
		}

		var file *handle.File
		if entry.IsDir() {
			if of.Intersects(handle.WRONLY | handle.RDWR) {
				return 0, kerrno.EISDIR
			}
			file = handle.NewDirFile(entry.AsDir())
		} else {
			if of.Contains(handle.DIRECTORY) {
				return 0, kerrno.ENOTDIR
			}
			file = handle.NewPagedFile(entry.Name, entry.AsFile())
		}
		return d.addOpenFD(proc, file, of)
	}

	if !of.Contains(handle.CREATE) {
		return 0, kerrno.ENOENT
	}

	paged, err := p2i.Dir.Mknod(p2i.LastComponent)
	if err != nil {
		return 0, err
	}
	return d.addOpenFD(proc, handle.NewPagedFile(p2i.LastComponent, paged), of)
}

func (d *Dispatcher) addOpenFD(proc Process, file *handle.File, of handle.OpenFlags) (int64, error) {
	fdNum, err := proc.FDTable().Add(handle.NewFileDescriptor(file, of))
	if err != nil {
		return 0, err
	}
	return int64(fdNum), nil
}

// sys_close (id 57).
func (d *Dispatcher) sysClose(proc Process, fd int) (int64, error) {
	if !proc.FDTable().Remove(fd) {
		return 0, kerrno.EBADF
	}
	return 0, nil
}

// sys_getdents64 (id 61): packs entries as Linux's struct linux_dirent64.
func (d *Dispatcher) sysGetdents64(proc Process, fd int, bufCheck UserCheckMut) (int64, error) {
	desc, err := proc.FDTable().Get(fd)
	if err != nil {
		return 0, err
	}
	if desc.File.Dir == nil {
		return 0, kerrno.ENOTDIR
	}

	buf, err := bufCheck.CheckSliceMut()
	if err != nil {
		return 0, err
	}

	entries, err := desc.File.Dir.ReadDir()
	if err != nil {
		return 0, err
	}

	n := packDirents(buf, entries)
	if err := bufCheck.WriteBack(buf[:n]); err != nil {
		return 0, err
	}
	return int64(n), nil
}

const (
	dtDir = 4
	dtReg = 8
)

// packDirents writes as many entries as fit into buf in Linux dirent64
// format, returning the number of bytes written. Entries that don't fit are
// not written. sysGetdents64 keeps no directory position between calls, so
// every call packs from the first entry again: entries beyond what one
// buffer holds are never returned, and a non-empty directory never yields a
// zero return.
func packDirents(buf []byte, entries []*fs.DEntry) int {
	off := 0
	for _, e := range entries {
		nameBytes := append([]byte(e.Name), 0)
		recLen := align8(19 + len(nameBytes))
		if off+recLen > len(buf) {
			break
		}

		var ino uint64
		dtype := byte(dtReg)
		if e.IsDir() {
			ino = e.AsDir().Inode.Meta.Ino
			dtype = dtDir
		} else {
			ino = e.AsFile().Meta.Ino
		}

		rec := buf[off : off+recLen]
		binary.LittleEndian.PutUint64(rec[0:8], ino)
		binary.LittleEndian.PutUint64(rec[8:16], uint64(off+recLen))
		binary.LittleEndian.PutUint16(rec[16:18], uint16(recLen))
		rec[18] = dtype
		copy(rec[19:], nameBytes)

		off += recLen
	}
	return off
}

func align8(n int) int { return (n + 7) &^ 7 }

// sys_read (id 63). Modeled as a plain synchronous call rather than one
// bridged through internal/executor.Future: the only backend behind a Paged
// inode in this core (FAT32 over a synchronous BlockDevice) never actually
// suspends, so there is no real suspension point to model. A future DMA-
// capable block driver would make PagedBackend.ReadPage itself
// Future-returning; this is the seam where that would plug in.
func (d *Dispatcher) sysRead(proc Process, fd int, bufCheck UserCheckMut) (int64, error) {
	desc, err := prepareIO(proc, fd, true)
	if err != nil {
		return 0, err
	}
	buf, err := bufCheck.CheckSliceMut()
	if err != nil {
		return 0, err
	}

	n, err := desc.File.Paged.ReadAt(buf, desc.Offset(), d.Clock)
	if err != nil {
		return 0, err
	}
	if err := bufCheck.WriteBack(buf[:n]); err != nil {
		return 0, err
	}
	desc.Advance(uint64(n))
	return int64(n), nil
}

// sys_write (id 64).
func (d *Dispatcher) sysWrite(proc Process, fd int, bufCheck UserCheck) (int64, error) {
	desc, err := prepareIO(proc, fd, false)
	if err != nil {
		return 0, err
	}
	buf, err := bufCheck.CheckSlice()
	if err != nil {
		return 0, err
	}

	n, err := desc.File.Paged.WriteAt(buf, desc.Offset(), d.Clock)
	if err != nil {
		return 0, err
	}
	desc.Advance(uint64(n))
	return int64(n), nil
}

// prepareIO resolves fd to a descriptor and checks it against the
// direction's access mode, mirroring syscall/fs.rs::prepare_io.
func prepareIO(proc Process, fd int, read bool) (*handle.FileDescriptor, error) {
	desc, err := proc.FDTable().Get(fd)
	if err != nil {
		return nil, err
	}
	if desc.File.Dir != nil {
		return nil, kerrno.EISDIR
	}
	flags := desc.Flags()
	if read && !flags.Readable() || !read && !flags.Writable() {
		return nil, kerrno.EBADF
	}
	return desc, nil
}

// ioVecSize is sizeof(struct iovec) on a 64-bit target: two machine words.
const ioVecSize = 16

// decodeIOVec reads an iovec array of vlen entries starting at ptr,
// returning each entry's (base, len) pair.
func decodeIOVec(space AddressSpace, ptr uintptr, vlen int) ([][2]uintptr, error) {
	raw, err := space.CheckBytes(ptr, vlen*ioVecSize)
	if err != nil {
		return nil, kerrno.EFAULT
	}
	out := make([][2]uintptr, vlen)
	for i := 0; i < vlen; i++ {
		rec := raw[i*ioVecSize : (i+1)*ioVecSize]
		out[i] = [2]uintptr{
			uintptr(binary.LittleEndian.Uint64(rec[0:8])),
			uintptr(binary.LittleEndian.Uint64(rec[8:16])),
		}
	}
	return out, nil
}

// sys_readv (id 65): sequential, stops on a short read. Atomicity across
// the whole vector is a known gap, matching the original's NOTE.
func (d *Dispatcher) sysReadv(proc Process, fd int, iovecPtr uintptr, vlen int) (int64, error) {
	desc, err := prepareIO(proc, fd, true)
	if err != nil {
		return 0, err
	}
	vec, err := decodeIOVec(d.Space, iovecPtr, vlen)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, iov := range vec {
		bufCheck := NewUserCheckMut(d.Space, iov[0], int(iov[1]))
		buf, err := bufCheck.CheckSliceMut()
		if err != nil {
			return 0, err
		}
		n, err := desc.File.Paged.ReadAt(buf, desc.Offset(), d.Clock)
		if err != nil {
			return 0, err
		}
		if err := bufCheck.WriteBack(buf[:n]); err != nil {
			return 0, err
		}
		desc.Advance(uint64(n))
		total += int64(n)
		if n < len(buf) {
			break
		}
	}
	return total, nil
}

// sys_writev (id 66).
func (d *Dispatcher) sysWritev(proc Process, fd int, iovecPtr uintptr, vlen int) (int64, error) {
	desc, err := prepareIO(proc, fd, false)
	if err != nil {
		return 0, err
	}
	vec, err := decodeIOVec(d.Space, iovecPtr, vlen)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, iov := range vec {
		bufCheck := NewUserCheck(d.Space, iov[0], int(iov[1]))
		buf, err := bufCheck.CheckSlice()
		if err != nil {
			return 0, err
		}
		n, err := desc.File.Paged.WriteAt(buf, desc.Offset(), d.Clock)
		if err != nil {
			return 0, err
		}
		desc.Advance(uint64(n))
		total += int64(n)
		if n == 0 {
			break
		}
	}
	return total, nil
}

// sys_dup3 (id 24): EINVAL if old==new; CLOEXEC honoured.
func (d *Dispatcher) sysDup3(proc Process, oldFD, newFD int, flags uint32) (int64, error) {
	if oldFD == newFD {
		return 0, kerrno.EINVAL
	}
	desc, err := proc.FDTable().Get(oldFD)
	if err != nil {
		return 0, err
	}
	newDesc := desc.Clone()
	if handle.OpenFlags(flags).Contains(handle.CLOEXEC) {
		newDesc.SetCloseOnExec(true)
	}
	proc.FDTable().Insert(newFD, newDesc)
	return int64(newFD), nil
}

const (
	fDupFD        = 0
	fDupFDCloexec = 1030
	fGetFD        = 1
	fSetFD        = 2
)

// sys_fcntl64 (id 25): F_DUPFD, F_DUPFD_CLOEXEC, F_GETFD, F_SETFD.
func (d *Dispatcher) sysFcntl64(proc Process, fd int, cmd int, arg int) (int64, error) {
	switch cmd {
	case fDupFD, fDupFDCloexec:
		desc, err := proc.FDTable().Get(fd)
		if err != nil {
			return 0, err
		}
		newDesc := desc.Clone()
		if cmd == fDupFDCloexec {
			newDesc.SetCloseOnExec(true)
		}
		newFD, err := proc.FDTable().AddFrom(newDesc, arg)
		if err != nil {
			return 0, err
		}
		return int64(newFD), nil
	case fGetFD:
		desc, err := proc.FDTable().Get(fd)
		if err != nil {
			return 0, err
		}
		if desc.Flags().Contains(handle.CLOEXEC) {
			return 1, nil
		}
		return 0, nil
	case fSetFD:
		desc, err := proc.FDTable().Get(fd)
		if err != nil {
			return 0, err
		}
		desc.SetCloseOnExec(arg&1 != 0)
		return 0, nil
	default:
		return 0, kerrno.EINVAL
	}
}

// atEmptyPath mirrors FstatFlags::AT_EMPTY_PATH.
const atEmptyPath = 0x1000

// sys_newfstatat (id 79): empty path requires AT_EMPTY_PATH and stats the
// fd itself; otherwise resolves path and stats the named file.
func (d *Dispatcher) sysNewfstatat(proc Process, dirFD int, pathCheck UserCheck, statCheck UserCheckMut, flags int) (int64, error) {
	path, err := pathCheck.CheckCStr()
	if err != nil {
		return 0, err
	}
	if path == "" && flags&atEmptyPath == 0 {
		return 0, kerrno.ENOENT
	}

	var meta *inode.Meta
	if path == "" {
		desc, err := proc.FDTable().Get(dirFD)
		if err != nil {
			return 0, err
		}
		meta = desc.File.Meta()
	} else {
		startDir, err := d.resolveStartDir(proc, path, dirFD)
		if err != nil {
			return 0, err
		}
		p2i, err := fs.PathWalk(startDir, path)
		if err != nil {
			return 0, err
		}
		entry, err := p2i.Dir.Lookup(p2i.LastComponent)
		if err != nil {
			return 0, err
		}
		if entry.IsDir() {
			meta = entry.AsDir().Inode.Meta
		} else {
			meta = entry.AsFile().Meta
		}
	}

	stat := fs.StatFromMeta(meta)
	buf, err := statCheck.CheckSliceMut()
	if err != nil {
		return 0, err
	}
	encodeStat(buf, stat)
	if err := statCheck.WriteBack(buf); err != nil {
		return 0, err
	}
	return 0, nil
}

// encodeStat packs a Stat into buf using the same field layout/order as
// struct stat on a 64-bit RISC-V/Linux target, enough for user code that
// reads the standard fields back out.
func encodeStat(buf []byte, st fs.Stat) {
	binary.LittleEndian.PutUint64(buf[0:8], st.Dev)
	binary.LittleEndian.PutUint64(buf[8:16], st.Ino)
	binary.LittleEndian.PutUint32(buf[16:20], st.Mode)
	binary.LittleEndian.PutUint32(buf[20:24], st.Nlink)
	binary.LittleEndian.PutUint32(buf[24:28], st.UID)
	binary.LittleEndian.PutUint32(buf[28:32], st.GID)
	binary.LittleEndian.PutUint64(buf[32:40], st.Rdev)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(st.Size))
	binary.LittleEndian.PutUint32(buf[56:60], st.Blksize)
	binary.LittleEndian.PutUint64(buf[64:72], st.Blocks)
	// Stat times are UnixNano; struct stat splits each into seconds and nanoseconds.
	binary.LittleEndian.PutUint64(buf[72:80], uint64(st.Atime/1e9))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(st.Atime%1e9))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(st.Mtime/1e9))
	binary.LittleEndian.PutUint64(buf[96:104], uint64(st.Mtime%1e9))
	binary.LittleEndian.PutUint64(buf[104:112], uint64(st.Ctime/1e9))
	binary.LittleEndian.PutUint64(buf[112:120], uint64(st.Ctime%1e9))
}
