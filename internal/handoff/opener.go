package handoff

import (
	"context"
	"os/exec"
	"runtime"
)

// Opener resolves and invokes hand-off target URLs. The production
// implementation shells out to the host's URL opener; tests supply fakes.
type Opener interface {
	// Installed reports whether the target's bare scheme URL can be
	// resolved on this host.
	Installed(ctx context.Context, scheme string) bool

	// Open invokes the URL. A non-nil error means the target rejected
	// the hand-off.
	Open(ctx context.Context, rawURL string) error
}

// ExecOpener opens URLs through the platform open command.
type ExecOpener struct {
	// Command overrides the platform default opener binary.
	Command string
}

func (o *ExecOpener) command() string {
	if o.Command != "" {
		return o.Command
	}
	if runtime.GOOS == "darwin" {
		return "open"
	}
	return "xdg-open"
}

func (o *ExecOpener) Installed(ctx context.Context, scheme string) bool {
	if _, err := exec.LookPath(o.command()); err != nil {
		return false
	}
	// Resolving the bare scheme is delegated to the opener itself; a host
	// without the open command cannot reach the target at all.
	return scheme != ""
}

func (o *ExecOpener) Open(ctx context.Context, rawURL string) error {
	return exec.CommandContext(ctx, o.command(), rawURL).Run()
}
