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

// Package config loads the machine description from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/andreas-jonsson/virtualx86/emulator/processor/cpu"
	"github.com/spf13/afero"
)

// EnvPath names the environment variable holding the default config path.
const EnvPath = "VX86_CONFIG"

var ErrInvalidRAM = errors.New("RAM size must be between 1 and 4095 MiB")

type Cyrix struct {
	ARR3Base uint32 `toml:"arr3_base"`
	ARR3Size uint32 `toml:"arr3_size"`
	CCR1     byte   `toml:"ccr1"`
}

type Config struct {
	Model          string `toml:"model"`
	RAM            int    `toml:"ram"`
	SMBase         uint32 `toml:"smbase"`
	UnmaskA20InSMM bool   `toml:"unmask_a20_in_smm"`
	BIOS           string `toml:"bios"`
	FastTimer      int    `toml:"fast_timer"`
	Cyrix          Cyrix  `toml:"cyrix"`
}

// Default is the machine used when no file is given.
func Default() *Config {
	return &Config{
		Model:  "pentium",
		RAM:    16,
		SMBase: cpu.DefaultSMBase,
		Cyrix: Cyrix{
			ARR3Base: 0xA0000,
			ARR3Size: 0x10000,
			CCR1:     cpu.CCR1UseSMI | cpu.CCR1SM3,
		},
	}
}

// DefaultPath returns the path from the environment, or the empty string.
func DefaultPath() string {
	return os.Getenv(EnvPath)
}

// Load decodes the file on top of the defaults. An empty name returns the
// defaults unchanged.
func Load(fs afero.Fs, name string) (*Config, error) {
	c := Default()
	if name == "" {
		return c, nil
	}

	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", name, undecoded[0].String())
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if _, err := cpu.LookupModel(c.Model); err != nil {
		return err
	}
	if c.RAM <= 0 || c.RAM >= 4096 {
		return ErrInvalidRAM
	}
	if c.SMBase&0xFFF != 0 {
		return fmt.Errorf("SMBASE 0x%X is not page aligned", c.SMBase)
	}
	return nil
}

// CPUModel resolves the configured model.
func (c *Config) CPUModel() (*cpu.Model, error) {
	return cpu.LookupModel(c.Model)
}

// Save writes the configuration back as TOML.
func (c *Config) Save(fs afero.Fs, name string) error {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
