package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// managePIDFile writes the server PID to path, optionally holding an
// exclusive lock on it. The returned cleanup removes the file.
func managePIDFile(path string, lock bool) (func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("cannot create PID file: %w", err)
		}
		if lock {
			if err := reclaimablePID(path); err != nil {
				return nil, err
			}
		}
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("cannot open PID file: %w", err)
		}
	}

	if lock {
		if err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			file.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, fmt.Errorf("cannot acquire lock: another analysis server is running")
			}
			return nil, fmt.Errorf("lock failed: %w", err)
		}
	}

	if _, err = fmt.Fprintf(file, "%d\n", os.Getpid()); err == nil {
		err = file.Sync()
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cannot write PID file: %w", err)
	}

	return func() {
		if lock {
			syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		}
		file.Close()
		os.Remove(path)
	}, nil
}

// reclaimablePID succeeds when the PID file at path names a process that is
// no longer running
func reclaimablePID(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read existing PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return fmt.Errorf("corrupted PID file (contains: %q)", pidStr)
	}

	// FindProcess never fails on Unix; signal 0 probes for existence
	proc, _ := os.FindProcess(pid)
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return fmt.Errorf("process %d from PID file is still running", pid)
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return nil
	default:
		return fmt.Errorf("process %d exists but cannot verify ownership: %v", pid, err)
	}
}
