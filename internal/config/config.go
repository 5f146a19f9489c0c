// Package config decodes and validates BuildPulse's TOML configuration
// file into the typed structures the rest of the pipeline consumes.
package config

import (
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/hearthci/buildpulse/internal/bperrors"
	"github.com/hearthci/buildpulse/internal/predicate"
	"github.com/hearthci/buildpulse/internal/types"
)

// ArtifactRule is one `[[artifact]]` table: path is a regex matched against
// an artifact's relative path, post_process and render are optional
// executables (argv form: first element is the command, rest are args).
type ArtifactRule struct {
	Path        string   `toml:"path"`
	PostProcess []string `toml:"post_process"`
	Render      []string `toml:"render"`
}

// View is one `[[view]]` table: a named predicate expression over the tag
// catalog. Load rejects an expression that does not parse; expansion and
// compilation are left to whoever renders it.
type View struct {
	Name string `toml:"name"`
	Expr string `toml:"expr"`
}

// TagDef is one `[[tag]]` table, the TOML-level mirror of types.Tag before
// its pattern and from/severity strings are validated and compiled.
type TagDef struct {
	Name     string `toml:"name"`
	Desc     string `toml:"desc"`
	Pattern  string `toml:"pattern"`
	From     string `toml:"from"`
	Severity string `toml:"severity"`
}

// File is the decoded shape of config.toml.
type File struct {
	JenkinsURL   string   `toml:"jenkins_url"`
	Project      string   `toml:"project"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	Database     string   `toml:"database"`
	Timezone     int8     `toml:"timezone"`
	Blocklist    []string `toml:"blocklist"`
	Threshold    float64  `toml:"threshold"`
	LastNHistory int      `toml:"last_n_history"`

	Artifacts []ArtifactRule `toml:"artifact"`
	Views     []View         `toml:"view"`
	Tags      []TagDef       `toml:"tag"`
}

// Load decodes path as TOML and validates it. Every failure is a
// bperrors.Configuration error, fatal at startup.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, bperrors.Wrap(bperrors.Configuration, fmt.Errorf("config: decode %s: %w", path, err))
	}
	f.applyEnvOverrides()
	if err := f.validate(); err != nil {
		return nil, bperrors.Wrap(bperrors.Configuration, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.JenkinsURL == "" {
		return fmt.Errorf("config: jenkins_url is required")
	}
	if f.Project == "" {
		return fmt.Errorf("config: project is required")
	}
	if f.Database == "" {
		return fmt.Errorf("config: database is required")
	}
	if f.Threshold <= 0 || f.Threshold >= 1 {
		return fmt.Errorf("config: threshold must be in (0,1), got %v", f.Threshold)
	}
	if f.LastNHistory <= 0 {
		return fmt.Errorf("config: last_n_history must be positive, got %d", f.LastNHistory)
	}
	for _, a := range f.Artifacts {
		if _, err := regexp.Compile(a.Path); err != nil {
			return fmt.Errorf("config: artifact path %q: %w", a.Path, err)
		}
	}
	for _, t := range f.Tags {
		if t.Name == "" {
			return fmt.Errorf("config: tag with empty name")
		}
		if _, err := regexp.Compile(t.Pattern); err != nil {
			return fmt.Errorf("config: tag %q pattern %q: %w", t.Name, t.Pattern, err)
		}
		if !types.From(t.From).Valid() {
			return fmt.Errorf("config: tag %q has invalid from %q", t.Name, t.From)
		}
		if !types.Severity(t.Severity).Valid() {
			return fmt.Errorf("config: tag %q has invalid severity %q", t.Name, t.Severity)
		}
	}
	for _, v := range f.Views {
		if v.Name == "" {
			return fmt.Errorf("config: view with empty name")
		}
		if v.Expr == "" {
			return fmt.Errorf("config: view %q has empty expr", v.Name)
		}
		if _, err := predicate.Parse(v.Expr); err != nil {
			return fmt.Errorf("config: view %q expr: %w", v.Name, err)
		}
	}
	return nil
}

// TagsAsTypes converts the validated TagDef list into types.Tag values
// ready for tagcatalog.Build and storage.UpsertTag.
func (f *File) TagsAsTypes() []types.Tag {
	out := make([]types.Tag, len(f.Tags))
	for i, t := range f.Tags {
		out[i] = types.Tag{
			Name:        t.Name,
			Description: t.Desc,
			Pattern:     t.Pattern,
			From:        types.From(t.From),
			Severity:    types.Severity(t.Severity),
		}
	}
	return out
}

// ArtifactPatterns compiles each artifact rule's path regex. Called after
// validate has already confirmed every pattern compiles.
func (f *File) ArtifactPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(f.Artifacts))
	for i, a := range f.Artifacts {
		out[i] = regexp.MustCompile(a.Path)
	}
	return out
}
