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

// Command version generates version/current.go from VX86_VERSION and the
// current Git commit.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
)

const (
	defaultVersion = "0.1.0.0"
	startYear      = 2019
	copyrightFmt   = "Copyright (c) %v Andreas T Jonsson"
)

type values struct {
	Major, Minor, Patch int
	Build, Hash         string
	Copyright, Package  string
}

// parse splits MAJOR.MINOR.PATCH.BUILD. A zero build is left empty.
func parse(version string) (v values, err error) {
	parts := strings.SplitN(version, ".", 4)
	if len(parts) != 4 {
		return v, fmt.Errorf("invalid version format: %q", version)
	}
	for i, dst := range []*int{&v.Major, &v.Minor, &v.Patch} {
		n, err := strconv.ParseUint(parts[i], 10, 8)
		if err != nil {
			return v, fmt.Errorf("invalid version format: %q: %w", version, err)
		}
		*dst = int(n)
	}
	if parts[3] != "0" {
		v.Build = parts[3]
	}
	return v, nil
}

func copyright(year int) string {
	if year == startYear {
		return fmt.Sprintf(copyrightFmt, startYear)
	}
	return fmt.Sprintf(copyrightFmt, fmt.Sprintf("%d-%d", startYear, year))
}

func main() {
	file := flag.String("file", "-", "Save the generated output to file")
	pkg := flag.String("package", "version", "Package name of the generated output")
	env := flag.String("variable", "VX86_VERSION", "Environment variable containing the version number")
	flag.Parse()

	version := os.Getenv(*env)
	if version == "" {
		version = defaultVersion
		debug.Log.Infof("%s is not set, defaulting to %s", *env, version)
	}

	v, err := parse(version)
	if err != nil {
		debug.Log.Warn(err)
		v, _ = parse(defaultVersion)
	}
	v.Copyright = copyright(time.Now().Year())
	v.Package = *pkg

	if res, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		v.Hash = strings.TrimSpace(string(res))
	} else {
		debug.Log.WithError(err).Warn("could not read Git hash")
	}

	tmpl := template.Must(template.New("version").Parse(content))
	out := os.Stdout
	if *file != "-" {
		fs := afero.NewOsFs()
		fp, err := fs.Create(*file)
		if err != nil {
			debug.Log.Fatal(err)
		}
		defer fp.Close()
		if err := tmpl.Execute(fp, v); err != nil {
			debug.Log.Fatal(err)
		}
		return
	}
	if err := tmpl.Execute(out, v); err != nil {
		debug.Log.Fatal(err)
	}
}

var content = `/*
{{.Copyright}}

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

package {{.Package}}

var (
	Current   = Version{ {{.Major}}, {{.Minor}}, {{.Patch}}, "{{.Build}}" }
	Copyright = "{{.Copyright}}"
	Hash      = "{{.Hash}}"
)
`
