// Copyright 2026 The Kestrel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ksh

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kestrel.dev/kestrel/pkg/abi/sk"
	kerrors "kestrel.dev/kestrel/pkg/errors"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/schemes/memory"
)

var errUsage = errors.New("bad usage, see help")

// pathError reports a failed syscall on path by errno name.
func pathError(path string, err error) error {
	var e *kerrors.Error
	if errors.As(err, &e) {
		return fmt.Errorf("%s: %v", path, e.Errno())
	}
	return fmt.Errorf("%s: %w", path, err)
}

// withFile opens path, runs fn and closes it.
func (s *Shell) withFile(path string, flags uint32, fn func(fd uintptr) error) error {
	fd, err := s.c.Open(path, flags)
	if err != nil {
		return pathError(path, err)
	}
	defer s.c.Close(fd)
	if err := fn(fd); err != nil {
		return pathError(path, err)
	}
	return nil
}

// copyOut copies fd to the shell's output until EOF.
func (s *Shell) copyOut(fd uintptr) error {
	buf := make([]byte, 4096)
	for {
		n, err := s.c.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := s.c.Write(s.opts.Out, buf[:n]); err != nil {
			return err
		}
	}
}

func cat(s *Shell, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, path := range args {
		if err := s.withFile(path, sk.O_RDONLY, s.copyOut); err != nil {
			return err
		}
	}
	return nil
}

func dmesg(s *Shell, _ []string) error {
	return s.withFile("debug:log", sk.O_RDONLY, s.copyOut)
}

func writeFile(s *Shell, args []string, flags uint32) error {
	if len(args) < 1 {
		return errUsage
	}
	text := strings.Join(args[1:], " ") + "\n"
	return s.withFile(args[0], sk.O_WRONLY|sk.O_CREAT|flags|0o644, func(fd uintptr) error {
		_, err := s.c.WriteString(fd, text)
		return err
	})
}

func write(s *Shell, args []string) error {
	return writeFile(s, args, sk.O_TRUNC)
}

func appendCmd(s *Shell, args []string) error {
	return writeFile(s, args, sk.O_APPEND)
}

func kindChar(kind uint8) byte {
	switch kind {
	case sk.DT_DIR:
		return 'd'
	case sk.DT_SYMLINK:
		return 'l'
	case sk.DT_CHR:
		return 'c'
	case sk.DT_FIFO:
		return 'p'
	case sk.DT_REG:
		return '-'
	default:
		return '?'
	}
}

func ls(s *Shell, args []string) error {
	dir := "/"
	switch len(args) {
	case 0:
	case 1:
		dir = args[0]
	default:
		return errUsage
	}
	return s.withFile(dir, sk.O_RDONLY|sk.O_DIRECTORY, func(fd uintptr) error {
		ents, err := s.c.Getdents(fd)
		for _, e := range ents {
			s.Printf("%c %s\n", kindChar(e.Kind), e.Name)
		}
		return err
	})
}

func mkdir(s *Shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return s.withFile(args[0], sk.O_CREAT|sk.O_EXCL|sk.O_DIRECTORY|sk.O_RDONLY|0o755, func(uintptr) error { return nil })
}

func rm(s *Shell, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, path := range args {
		if err := s.c.Unlink(path); err != nil {
			return pathError(path, err)
		}
	}
	return nil
}

func rmdir(s *Shell, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, path := range args {
		if err := s.c.Rmdir(path); err != nil {
			return pathError(path, err)
		}
	}
	return nil
}

func mv(s *Shell, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	return s.withFile(args[0], sk.O_STAT, func(fd uintptr) error {
		return s.c.Frename(fd, args[1])
	})
}

func ln(s *Shell, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	return s.withFile(args[0], sk.O_STAT, func(fd uintptr) error {
		return s.c.Flink(fd, args[1])
	})
}

func stat(s *Shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return s.withFile(args[0], sk.O_STAT, func(fd uintptr) error {
		st, err := s.c.Fstat(fd)
		if err != nil {
			return err
		}
		path, err := s.c.Fpath(fd)
		if err != nil {
			return err
		}
		s.Printf("%s: mode=%#o ino=%d nlink=%d uid=%d gid=%d size=%d\n", path, st.Mode, st.Ino, st.Nlink, st.UID, st.GID, st.Size)
		return nil
	})
}

func sleep(s *Shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return err
	}
	return s.c.Nanosleep(d)
}

func printClock(s *Shell, clock int32, format func(sk.Timespec) string) error {
	ts, err := s.c.ClockGettime(clock)
	if err != nil {
		return err
	}
	s.Printf("%s\n", format(ts))
	return nil
}

func date(s *Shell, _ []string) error {
	return printClock(s, sk.CLOCK_REALTIME, func(ts sk.Timespec) string {
		return time.Unix(ts.Sec, ts.Nsec).UTC().Format(time.RFC3339)
	})
}

func uptime(s *Shell, _ []string) error {
	return printClock(s, sk.CLOCK_MONOTONIC, func(ts sk.Timespec) string {
		return time.Duration(ts.ToNsec()).String()
	})
}

func mem(s *Shell, _ []string) error {
	return s.withFile("memory:", sk.O_RDWR, func(fd uintptr) error {
		reply := make([]byte, 16)
		if _, err := s.c.Call(fd, reply, sk.CALL_READ, memory.CallUsage); err != nil {
			return err
		}
		size := hostarch.ByteOrder.Uint64(reply[0:8])
		count := hostarch.ByteOrder.Uint64(reply[8:16])
		s.Printf("%d bytes in %d mappings\n", size, count)
		return nil
	})
}

func straceCmd(s *Shell, args []string) error {
	if s.opts.SetStrace == nil {
		return errors.New("tracing is not available")
	}
	if len(args) != 1 {
		return errUsage
	}
	on, err := strconv.ParseBool(strings.NewReplacer("on", "true", "off", "false").Replace(args[0]))
	if err != nil {
		return errUsage
	}
	s.opts.SetStrace(on)
	return nil
}
