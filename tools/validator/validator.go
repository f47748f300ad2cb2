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

// Command validator compares two mode transition traces recorded with
// virtualx86 -trace, or a trace against one from a reference CPU.
package main

import (
	"flag"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/validator"
)

var (
	vxInput  = "virtualx86.json"
	refInput = "reference.json"
	limit    = 10
)

var opts validator.Options

func init() {
	flag.StringVar(&vxInput, "virtualx86", vxInput, "Trace from this emulator")
	flag.StringVar(&refInput, "reference", refInput, "Trace from the reference CPU")
	flag.IntVar(&limit, "limit", limit, "Maximum number of mismatches to print")
	flag.BoolVar(&opts.IgnoreHidden, "selectors", false, "Compare segment selectors only")
	flag.BoolVar(&opts.IgnoreDebug, "nodebug", false, "Ignore debug registers")
}

func load(fs afero.Fs, name string) []validator.Event {
	fp, err := fs.Open(name)
	if err != nil {
		debug.Log.Fatal(err)
	}
	defer fp.Close()

	events, err := validator.Load(fp)
	if err != nil {
		debug.Log.WithField("file", name).Fatal(err)
	}
	return events
}

func main() {
	flag.Parse()
	fs := afero.NewOsFs()

	got, want := load(fs, vxInput), load(fs, refInput)
	report := validator.Compare(got, want, opts)
	if len(report) == 0 {
		color.Green("%d events equal", len(got))
		return
	}

	for i, r := range report {
		if i == limit {
			color.Yellow("... %d more", len(report)-limit)
			break
		}
		color.New(color.FgRed).Println(r)
	}
	os.Exit(1)
}
