//go:build !windows

package agentsup

import "os/exec"

// configurePlatform is a no-op outside Windows.
func configurePlatform(cmd *exec.Cmd) {}
