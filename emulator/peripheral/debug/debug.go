/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package debug

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
)

var EnableDebug bool

// Log is the emulator wide logger. The standard library logger is routed
// through it so device models using log.Print end up in the same stream.
var Log = logrus.New()

func init() {
	flag.BoolVar(&EnableDebug, "debug", false, "enable debug logging and SMM snapshots")

	Log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetFlags(0)
	log.SetOutput(Log.WriterLevel(logrus.InfoLevel))
}

// SetDebug enables debug level logging and state snapshots.
func SetDebug(b bool) {
	EnableDebug = b
	if b {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

func MuteLogging(b bool) {
	if b {
		Log.SetOutput(io.Discard)
		return
	}
	Log.SetOutput(os.Stderr)
}
