//go:build windows

package agentsup

import (
	"os/exec"
	"syscall"
)

// configurePlatform suppresses console window creation for the spawned
// child, matching the desktop workbench's own Windows spawn path.
func configurePlatform(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
