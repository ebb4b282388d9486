package agent

import "os/exec"

// execReplace spawns a fresh copy of the binary with the same argv and
// environment and exits the current process once it starts, approximating
// an in-place execve-based restart without requiring syscall access gated
// behind build tags.
func execReplace(path string, args []string, env []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	return cmd.Start()
}
