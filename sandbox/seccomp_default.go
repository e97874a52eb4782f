// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultSeccompJSONC is the syscall policy applied when no policy file
// is configured. It is a restrictive allow-list: anything outside it
// fails with EPERM rather than killing the process, so a stray syscall
// from a library shows up as an error instead of a silent death.
//
// The list covers what gVisor's sentry and platform layer need on top
// of an ordinary userspace process. Notably ptrace(2) must be allowed:
// gVisor's systrap and ptrace platforms depend on it, and some container
// engines' stock policies forbid it.
const defaultSeccompJSONC = `{
	"defaultAction": "SCMP_ACT_ERRNO",
	"defaultErrnoRet": 1,
	"archMap": [
		{
			"architecture": "SCMP_ARCH_X86_64",
			"subArchitectures": ["SCMP_ARCH_X86", "SCMP_ARCH_X32"]
		},
		{
			"architecture": "SCMP_ARCH_AARCH64",
			"subArchitectures": ["SCMP_ARCH_ARM"]
		}
	],
	"syscalls": [
		{
			// Process lifecycle and credentials.
			"names": [
				"arch_prctl", "capget", "capset", "clone", "clone3",
				"execve", "execveat", "exit", "exit_group", "fork",
				"getegid", "geteuid", "getgid", "getgroups", "getpgid",
				"getpgrp", "getpid", "getppid", "getpriority",
				"getrandom", "getresgid", "getresuid", "getrlimit",
				"getrusage", "getsid", "gettid", "getuid", "kill",
				"prctl", "prlimit64", "setgid", "setgroups",
				"setpgid", "setpriority", "setresgid", "setresuid",
				"setrlimit", "setsid", "setuid", "tgkill", "tkill",
				"vfork", "wait4", "waitid"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// gVisor's platform layer traces its stub processes.
			"names": ["process_vm_readv", "process_vm_writev", "ptrace"],
			"action": "SCMP_ACT_ALLOW",
			"comment": "required by the gVisor systrap and ptrace platforms"
		},
		{
			// Memory management.
			"names": [
				"brk", "madvise", "membarrier", "mincore", "mlock",
				"mlock2", "mmap", "mprotect", "mremap", "msync",
				"munlock", "munmap"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// File and directory operations.
			"names": [
				"access", "chdir", "chmod", "chown", "chroot", "close",
				"close_range", "copy_file_range", "creat", "dup",
				"dup2", "dup3", "faccessat", "faccessat2", "fadvise64",
				"fallocate", "fchdir", "fchmod", "fchmodat", "fchown",
				"fchownat", "fcntl", "fdatasync", "flock", "fstat",
				"fstatfs", "fsync", "ftruncate", "getcwd", "getdents",
				"getdents64", "ioctl", "link", "linkat", "lseek",
				"lstat", "mkdir", "mkdirat", "mknod", "mknodat",
				"newfstatat", "open", "openat", "openat2", "pipe",
				"pipe2", "pread64", "preadv", "preadv2", "pwrite64",
				"pwritev", "pwritev2", "read", "readlink", "readlinkat",
				"readv", "rename", "renameat", "renameat2", "rmdir",
				"sendfile", "splice", "stat", "statfs", "statx",
				"symlink", "symlinkat", "sync", "sync_file_range",
				"syncfs", "tee", "truncate", "umask", "unlink",
				"unlinkat", "utime", "utimensat", "utimes", "write",
				"writev"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Extended attributes, read side only.
			"names": [
				"fgetxattr", "flistxattr", "getxattr", "lgetxattr",
				"listxattr", "llistxattr"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Polling, events, and timers.
			"names": [
				"clock_getres", "clock_gettime", "clock_nanosleep",
				"epoll_create", "epoll_create1", "epoll_ctl",
				"epoll_pwait", "epoll_pwait2", "epoll_wait",
				"eventfd", "eventfd2", "gettimeofday", "nanosleep",
				"poll", "ppoll", "pselect6", "select", "timer_create",
				"timer_delete", "timer_getoverrun", "timer_gettime",
				"timer_settime", "timerfd_create", "timerfd_gettime",
				"timerfd_settime", "times"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Signals.
			"names": [
				"pause", "restart_syscall", "rt_sigaction",
				"rt_sigpending", "rt_sigprocmask", "rt_sigqueueinfo",
				"rt_sigreturn", "rt_sigsuspend", "rt_sigtimedwait",
				"rt_tgsigqueueinfo", "sigaltstack", "signalfd",
				"signalfd4"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Threading and scheduling.
			"names": [
				"futex", "get_robust_list", "rseq", "sched_getaffinity",
				"sched_getattr", "sched_getparam", "sched_getscheduler",
				"sched_get_priority_max", "sched_get_priority_min",
				"sched_rr_get_interval", "sched_setaffinity",
				"sched_setattr", "sched_setparam", "sched_setscheduler",
				"sched_yield", "set_robust_list", "set_tid_address"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Unix sockets for gVisor's internal control plane. The
			// sandbox runs with no network namespace access, so inet
			// families are left to the default deny.
			"names": [
				"accept", "accept4", "bind", "connect", "getpeername",
				"getsockname", "getsockopt", "listen", "recvfrom",
				"recvmmsg", "recvmsg", "sendmmsg", "sendmsg", "sendto",
				"setsockopt", "shutdown", "socket", "socketpair"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Namespaces and mounts inside the outer container, used by
			// runsc to assemble the inner sandbox.
			"names": [
				"mount", "pivot_root", "setns", "umount2", "unshare"
			],
			"action": "SCMP_ACT_ALLOW"
		},
		{
			// Miscellaneous host introspection.
			"names": [
				"getcpu", "ioprio_get", "memfd_create", "seccomp",
				"sysinfo", "uname"
			],
			"action": "SCMP_ACT_ALLOW"
		}
	]
}
`

// DefaultSeccompPolicy returns the built-in syscall policy document.
func DefaultSeccompPolicy() []byte {
	return []byte(defaultSeccompJSONC)
}

// WriteDefaultSeccompPolicy writes the built-in policy into dir and
// returns the file's path, for handing to a container engine that
// takes seccomp policies by path.
func WriteDefaultSeccompPolicy(dir string) (string, error) {
	path := filepath.Join(dir, "seccomp.json")
	if err := os.WriteFile(path, DefaultSeccompPolicy(), 0o644); err != nil {
		return "", fmt.Errorf("writing default syscall policy: %w", err)
	}
	return path, nil
}
