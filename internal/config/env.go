package config

import (
	"strings"

	"github.com/spf13/viper"
)

// applyEnvOverrides lets BUILDPULSE_* environment variables override the
// scalar fields of a decoded File, with precedence env var > config file >
// default, scoped to the handful of fields an operator would plausibly
// want to override per-invocation without editing the TOML file
// (credentials, database path, the CI server URL). List-valued fields
// (blocklist, artifact[], view[], tag[]) are config-file-only: there is
// no sane single env var shape for a table array.
func (f *File) applyEnvOverrides() {
	v := viper.New()
	v.SetEnvPrefix("BUILDPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if s := v.GetString("jenkins_url"); s != "" {
		f.JenkinsURL = s
	}
	if s := v.GetString("project"); s != "" {
		f.Project = s
	}
	if s := v.GetString("username"); s != "" {
		f.Username = s
	}
	if s := v.GetString("password"); s != "" {
		f.Password = s
	}
	if s := v.GetString("database"); s != "" {
		f.Database = s
	}
}
