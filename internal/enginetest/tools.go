//go:build tools

// This file records the mockgen tool dependency that internal/enginetest's
// hand-written fakes are shaped after (spec: "written by hand in the same
// shape mockgen would produce"). It is never compiled into the module; it
// exists only so `go.mod` keeps a real, traceable reference to the tool
// rather than a lockstep generated-code dependency this repo doesn't run.
package enginetest

import (
	_ "github.com/golang/mock/mockgen/model"
)
