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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/andreas-jonsson/virtualx86/emulator"
	"github.com/andreas-jonsson/virtualx86/emulator/config"
	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/cpu"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/validator"
	"github.com/andreas-jonsson/virtualx86/version"
	"github.com/fatih/color"
	"github.com/gdamore/tcell"
	"github.com/spf13/afero"
)

var (
	configPath = config.DefaultPath()
	modelName  string
	dumpDir    string
	tracePath  string
	numSMI     int
	stepCycles = 1000
)

var (
	useMonitor,
	noColor,
	listModels,
	ver bool
)

func init() {
	flag.StringVar(&configPath, "config", configPath, "Path to machine configuration (TOML)")
	flag.StringVar(&modelName, "model", "", "Override the configured CPU model")
	flag.StringVar(&dumpDir, "dump", "", "Write SMM snapshots and save-state images to this directory")
	flag.StringVar(&tracePath, "trace", "", "Record mode transitions to this file (gzipped if it ends in .gz)")
	flag.IntVar(&numSMI, "smi", 1, "Number of SMIs to raise through the APM port")
	flag.IntVar(&stepCycles, "cycles", stepCycles, "Cycles to run between SMIs")

	flag.BoolVar(&useMonitor, "monitor", false, "Show the CPU monitor in the terminal")
	flag.BoolVar(&noColor, "nocolor", false, "Disable colored output")
	flag.BoolVar(&listModels, "models", false, "List the supported CPU models")
	flag.BoolVar(&ver, "v", false, "Print version information")
}

var (
	header  = color.New(color.FgCyan, color.Bold)
	nonZero = color.New(color.FgYellow)
	zero    = color.New(color.FgHiBlack)
	failure = color.New(color.FgRed, color.Bold)
)

func main() {
	flag.Parse()
	color.NoColor = color.NoColor || noColor
	debug.SetDebug(debug.EnableDebug)

	if ver {
		fmt.Printf("virtualx86 %s\n%s\n", version.Current.FullString(), version.Copyright)
		return
	}

	if listModels {
		for _, m := range cpu.Models {
			header.Printf("%-10s", m.Name)
			fmt.Printf(" family=%-6s smm=%v\n", m.Family, m.HasSMM())
		}
		return
	}

	if err := run(afero.NewOsFs()); err != nil {
		failure.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(fs afero.Fs) error {
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}
	if modelName != "" {
		cfg.Model = modelName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	var screen tcell.Screen
	if useMonitor {
		if screen, err = tcell.NewScreen(); err != nil {
			return err
		}
		if err = screen.Init(); err != nil {
			return err
		}
		debug.MuteLogging(true)
	}

	m, err := emulator.New(cfg, fs, screen)
	if err != nil {
		return err
	}
	defer m.Close()

	if dumpDir != "" {
		m.CPU.SetDumper(debug.NewDumper(fs, dumpDir))
	}

	if tracePath != "" {
		fp, err := fs.Create(tracePath)
		if err != nil {
			return err
		}
		defer fp.Close()

		rec := validator.NewRecorder(fp, strings.HasSuffix(tracePath, ".gz"), validator.DefaultQueueSize, validator.DefaultBufferSize)
		m.CPU.SetRecorder(rec)
		defer func() {
			if err := rec.Close(); err != nil {
				log.Print("could not write trace: ", err)
			}
		}()
	}

	if !m.CPU.Model().HasSMM() {
		log.Printf("%s has no SMM support", cfg.Model)
		return nil
	}

	for i := 0; i < numSMI; i++ {
		m.APM.Trigger(byte(i))
		if err := m.Step(stepCycles); err != nil {
			return err
		}
		if !m.CPU.InSMM() {
			return fmt.Errorf("SMI %d was not serviced", i)
		}

		if screen != nil {
			m.Monitor.Render()
		} else {
			printSaveState(m.CPU)
		}

		// Stand in for the handler's RSM.
		m.CPU.LeaveSMM()
	}

	if screen != nil {
		m.Monitor.Render()
		waitKey(screen)
	}
	header.Printf("%d SMI(s) serviced on %s\n", m.SMICount(), cfg.Model)
	return nil
}

func printSaveState(p *cpu.CPU) {
	s := p.SaveStateBuffer()
	header.Printf("%s save state, SMBASE 0x%X\n", p.Codec().Name(), p.SMBase())
	for i := 0; i < len(s); i += 8 {
		fmt.Printf("%3d:", i)
		for _, w := range s[i : i+8] {
			c := zero
			if w != 0 {
				c = nonZero
			}
			c.Printf(" %08X", w)
		}
		fmt.Println()
	}
}

func waitKey(s tcell.Screen) {
	for {
		if _, ok := s.PollEvent().(*tcell.EventKey); ok {
			return
		}
	}
}
