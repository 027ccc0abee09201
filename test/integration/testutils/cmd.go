package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// RunWdeploy executes a wdeploy command with the given arguments string (split by whitespace).
// Use RunWdeployArgs when arguments contain spaces that should be preserved.
func RunWdeploy(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	return RunWdeployArgs(ctx, env, binary, strings.Fields(cmdArgs), nolog)
}

// RunWdeployArgs executes a wdeploy command with pre-split arguments.
func RunWdeployArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &outData
	cmd.Stderr = &errData

	// Custom env overrides the inherited one, in exec.Cmd the last duplicated key wins.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "WDEPLOY_NO_LOG=true")
	}
	cmd.Env = newEnv

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}
