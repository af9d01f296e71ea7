package consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"codewright/pkg/proto"
)

// TerminalPrompter asks for consent decisions on an interactive terminal.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stdout}
}

// NewTerminalPrompterWithIO creates a prompter over custom streams, used in
// tests.
func NewTerminalPrompterWithIO(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

// StdinIsTerminal reports whether stdin is attached to a terminal. Callers
// use this to default the gate's non-interactive flag.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptConsent presents a package approval decision and reads one of:
// once, session, project, reject, or alt (when an alternative exists).
func (p *TerminalPrompter) PromptConsent(ctx context.Context, pkg string, reqCtx RequestContext) (proto.ConsentResponse, error) {
	fmt.Fprintf(p.out, "\nPackage approval required: %s\n", pkg)
	if reqCtx.Reason != "" {
		fmt.Fprintf(p.out, "  Reason: %s\n", reqCtx.Reason)
	}
	if len(reqCtx.UsedInFiles) > 0 {
		fmt.Fprintf(p.out, "  Used in: %s\n", strings.Join(reqCtx.UsedInFiles, ", "))
	}
	if reqCtx.Alternative != nil {
		fmt.Fprintf(p.out, "  Built-in alternative: %s — %s\n", reqCtx.Alternative.Module, reqCtx.Alternative.Description)
		if reqCtx.Alternative.Example != "" {
			fmt.Fprintf(p.out, "    Example: %s\n", reqCtx.Alternative.Example)
		}
	}

	options := "[o]nce / [s]ession / [p]roject / [r]eject"
	if reqCtx.Alternative != nil {
		options += " / [a]lternative"
	}

	// Reads happen on their own goroutine so a cancelled run closes the
	// prompt instead of hanging on stdin. A reader blocked on input when
	// the prompt returns dies with the process.
	type readLine struct {
		text string
		err  error
	}
	lines := make(chan readLine, 1)
	go func() {
		reader := bufio.NewReader(p.in)
		for {
			text, err := reader.ReadString('\n')
			lines <- readLine{text: text, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		fmt.Fprintf(p.out, "Approve? %s: ", options)

		var line readLine
		select {
		case <-ctx.Done():
			return proto.ConsentResponse{}, ctx.Err()
		case line = <-lines:
		}
		if line.err != nil {
			if line.err == io.EOF {
				// Closed input is a rejection, not a crash.
				return proto.ConsentResponse{Kind: proto.ConsentReject, Reason: "input closed"}, nil
			}
			return proto.ConsentResponse{}, fmt.Errorf("failed to read consent response: %w", line.err)
		}

		switch strings.ToLower(strings.TrimSpace(line.text)) {
		case "o", "once":
			return proto.ConsentResponse{Kind: proto.ConsentApproveOnce}, nil
		case "s", "session":
			return proto.ConsentResponse{Kind: proto.ConsentApproveSession}, nil
		case "p", "project":
			return proto.ConsentResponse{Kind: proto.ConsentApproveProject}, nil
		case "r", "reject", "n", "no":
			return proto.ConsentResponse{Kind: proto.ConsentReject}, nil
		case "a", "alt", "alternative":
			if reqCtx.Alternative != nil {
				return proto.ConsentResponse{Kind: proto.ConsentSubstitute, Alternative: reqCtx.Alternative.Module}, nil
			}
			fmt.Fprintln(p.out, "No built-in alternative is known for this package.")
		default:
			fmt.Fprintln(p.out, "Unrecognized choice.")
		}
	}
}
