package extbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/sh"
)

// toolExec runs external tools. Tests replace it to simulate toolchains.
var toolExec = execCommand

// execCommand runs cmd with env added to the process environment. Unlike
// sh.Exec the arguments are passed verbatim, so flags such as
// -Wl,-rpath,$ORIGIN reach the tool unexpanded, and the process is killed
// when ctx is done.
func execCommand(ctx context.Context, env map[string]string, stdout, stderr io.Writer, cmd string, args ...string) (ran bool, err error) {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Env = os.Environ()
	for k, v := range env {
		c.Env = append(c.Env, k+"="+v)
	}
	c.Stdout = stdout
	c.Stderr = stderr
	err = c.Run()
	return sh.CmdRan(err), err
}

// runTool executes a build tool for spec and appends its output to result.
//
// A tool that could not be started yields an *ExecError; a tool that ran and
// exited non-zero yields a *CompileError carrying the exit code and output.
// Cancelling ctx kills a running tool and returns the context error.
func runTool(ctx context.Context, config *BuildConfig, builder string, spec *ExtensionSpec, env map[string]string, result *BuildResult, tool string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if env == nil {
		env = config.Env
	}

	var output bytes.Buffer
	ran, err := toolExec(ctx, env, &output, &output, tool, args...)
	result.Output = append(result.Output, splitOutput(output.String())...)

	if config.Verbose {
		result.Output = append(result.Output, fmt.Sprintf("Running: %s %s", tool, strings.Join(args, " ")))
	}

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if !ran {
		return &ExecError{Tool: tool, Err: err}
	}

	return &CompileError{
		Builder:   builder,
		Extension: spec.Name,
		ExitCode:  sh.ExitStatus(err),
		Output:    append([]string(nil), result.Output...),
		Err:       err,
	}
}
