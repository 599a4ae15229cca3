// +build debug

// Package debug provides assertion helpers that compile to no-ops unless
// built with the "debug" tag.
package debug

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/golang/glog"
)

func _panic(a ...interface{}) {
	msg := "DEBUG PANIC: "
	if len(a) > 0 {
		msg += fmt.Sprint(a...)
	}
	glog.Error(msg)
	glog.Flush()
	panic(msg)
}

func Assert(cond bool, a ...interface{}) {
	if !cond {
		_panic(a...)
	}
}

func Assertf(cond bool, f string, a ...interface{}) {
	if !cond {
		_panic(fmt.Sprintf(f, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		_panic(err)
	}
}

func AssertMutexLocked(m *sync.Mutex) {
	state := reflect.ValueOf(m).Elem().FieldByName("state")
	Assertf(state.Int()&1 == 1, "mutex not locked")
}
