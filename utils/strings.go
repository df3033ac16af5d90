package utils

import (
	"sync"
	"unsafe"
)

// interned deduplicates strings drawn from a small stable domain, such as
// request methods on the routing hot path.
var interned sync.Map

// Intern returns a shared string for buf, allocating only the first time a
// value is seen.
func Intern(buf []byte) string {
	if v, ok := interned.Load(string(buf)); ok {
		return v.(string)
	}

	s := string(buf)
	interned.Store(s, s)
	return s
}

// BytesToString reinterprets b as a string without copying. The result is
// only valid while b stays alive and unmodified, which holds for fasthttp
// request buffers within one request.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}
