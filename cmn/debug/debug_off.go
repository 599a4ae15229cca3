// +build !debug

package debug

import "sync"

func Assert(cond bool, a ...interface{})            {}
func Assertf(cond bool, f string, a ...interface{}) {}
func AssertNoErr(err error)                         {}
func AssertMutexLocked(m *sync.Mutex)               {}
