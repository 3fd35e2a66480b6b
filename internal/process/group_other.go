//go:build !unix

package process

import "os/exec"

// killGroup leaves cancellation to exec.CommandContext.
func killGroup(cmd *exec.Cmd) {}
