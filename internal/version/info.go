// Package version reports build information for txexec.
package version

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Set at build time:
//
//	-X github.com/altuslabsxyz/txexec/internal/version.Version=v0.2.0
//	-X github.com/altuslabsxyz/txexec/internal/version.GitCommit=$(git rev-parse HEAD)
//	-X github.com/altuslabsxyz/txexec/internal/version.BuildDate=$(date -u +%FT%TZ)
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Name      string   `json:"name" yaml:"name"`
	Version   string   `json:"version" yaml:"version"`
	GitCommit string   `json:"commit" yaml:"commit"`
	Modified  bool     `json:"modified,omitempty" yaml:"modified,omitempty"`
	BuildDate string   `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	GoVersion string   `json:"go" yaml:"go"`
	Platform  string   `json:"platform" yaml:"platform"`
	Deps      []string `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// NewInfo returns the build information, falling back to the VCS stamp
// recorded by the Go toolchain when no commit was injected.
func NewInfo(name string) Info {
	info := Info{
		Name:      name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withVCS(bi)
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	return info
}

func (i Info) withVCS(bi *debug.BuildInfo) Info {
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == "" {
				i.GitCommit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	return i
}

// WithDeps lists the module dependencies compiled into the binary.
func (i Info) WithDeps() Info {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	i.Deps = depList(bi.Deps)
	return i
}

func depList(mods []*debug.Module) []string {
	deps := make([]string, 0, len(mods))
	for _, m := range mods {
		s := m.Path + "@" + m.Version
		if m.Replace != nil {
			s += " => " + m.Replace.Path + "@" + m.Replace.Version
		}
		deps = append(deps, s)
	}
	sort.Strings(deps)
	return deps
}

// String returns the short human readable form.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", i.Name, i.Version)
	commit := i.GitCommit
	if i.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(&sb, "  commit:     %s\n", commit)
	if i.BuildDate != "" {
		fmt.Fprintf(&sb, "  build date: %s\n", i.BuildDate)
	}
	fmt.Fprintf(&sb, "  go:         %s %s\n", i.GoVersion, i.Platform)
	return sb.String()
}

// Write renders i to w as text, YAML or JSON.
func (i Info) Write(w io.Writer, format string) error {
	switch format {
	case "", "text":
		_, err := io.WriteString(w, i.String())
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(i); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(i)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// NewCmd creates the version command.
func NewCmd(name string) *cobra.Command {
	var (
		long   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := NewInfo(name)
			if long {
				info = info.WithDeps()
				if output == "" {
					output = "yaml"
				}
			}
			return info.Write(cmd.OutOrStdout(), output)
		},
	}

	cmd.Flags().BoolVar(&long, "long", false, "Include module dependencies")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, yaml or json")
	return cmd
}
