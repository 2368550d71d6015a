/**
 * Capture Sandbox.
 *
 * Best-effort privilege reduction for capture helpers that are started
 * setuid-root (or granted CAP_NET_RAW/CAP_NET_ADMIN via file
 * capabilities) so they can open a raw socket, then want to shed every
 * other privilege before touching untrusted packet bytes. Both steps
 * are advisory: a helper running as an unprivileged user with
 * capabilities already dropped by the exec environment just no-ops
 * through here.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Linux capability bit numbers from linux/capability.h. x/sys/unix
// doesn't export these as named constants, only the prctl/capset
// syscalls that consume them.
const (
	capNetAdmin = 12
	capNetRaw   = 13
	capSysAdmin = 21
)

// JailFilesystem chroots into root and chdirs to "/", matching
// cf_jail_filesystem's intent of denying the capture process any
// further filesystem access beyond what it already opened (pcap
// handles, log fds). Must be called while still privileged.
func JailFilesystem(root string) error {
	if err := unix.Chroot(root); err != nil {
		return fmt.Errorf("capframework: chroot(%s): %w", root, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("capframework: chdir after chroot: %w", err)
	}
	return nil
}

// DropMostCaps drops every capability from the process's bounding set
// except CAP_NET_RAW and CAP_NET_ADMIN (the pair a monitor-mode capture
// helper legitimately needs), matching cf_drop_most_caps, via
// PR_CAPBSET_DROP -- one prctl per bit rather than a single capset(2)
// call, since that's the call x/sys/unix exposes a direct wrapper for.
// Best-effort: an already-unprivileged process just gets EPERM on each
// call, which is not treated as fatal.
func DropMostCaps() error {
	keep := map[int]bool{capNetRaw: true, capNetAdmin: true}

	var lastErr error
	for cp := 0; cp <= 63; cp++ {
		// PR_CAPBSET_READ fails past the kernel's highest capability.
		if err := unix.Prctl(unix.PR_CAPBSET_READ, uintptr(cp), 0, 0, 0); err != nil {
			break
		}
		if keep[cp] {
			continue
		}
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(cp), 0, 0, 0); err != nil {
			lastErr = err
		}
	}
	// Clear the ambient set too, so any process this one later execs
	// doesn't inherit caps through that separate inheritance path.
	_ = unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0)

	if lastErr != nil {
		return fmt.Errorf("capframework: PR_CAPBSET_DROP: %w", lastErr)
	}
	return nil
}
