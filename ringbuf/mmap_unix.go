// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

//go:build linux || darwin

package ringbuf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the whole of fd (which must already be sized to want
// bytes) read/write and shared, using the golang.org/x/sys/unix wrapper
// rather than raw syscall plumbing.
func mmapFile(fd *os.File, want int) ([]byte, error) {
	buf, err := unix.Mmap(int(fd.Fd()), 0, want, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %s", ErrFatal, err)
	}
	return buf, nil
}

// munmapFile unmaps a region obtained from mmapFile. The caller's *os.File
// is not touched; closing it is the caller's responsibility.
func munmapFile(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("%w: munmap: %s", ErrFatal, err)
	}
	return nil
}
