package main

import (
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts drives testdata/*.txt through rsc.io/script's default
// command set. The scripts check the config fixtures they carry; they do
// not run the buildpulse command itself.
func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	scripttest.Test(t, context.Background(), engine, os.Environ(), "testdata/*.txt")
}
