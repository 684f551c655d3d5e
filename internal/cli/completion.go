package cli

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// getCompletionVersion returns a hash representing the current command structure
// This is used to detect if completions are outdated
func getCompletionVersion() string {
	h := sha256.New()
	h.Write([]byte(Version))

	var walkCommands func(*cobra.Command)
	walkCommands = func(cmd *cobra.Command) {
		h.Write([]byte(cmd.Use))
		cmd.Flags().VisitAll(func(flag *pflag.Flag) {
			h.Write([]byte(flag.Name))
		})
		for _, subCmd := range cmd.Commands() {
			walkCommands(subCmd)
		}
	}
	walkCommands(rootCmd)

	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell|status]",
	Short: "Generate completion script",
	Long: `Generate shell completion scripts.

Check Completion Status:
  $ qgate completion status

  Checks if installed completions match the current version.

Bash:
  $ source <(qgate completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ qgate completion bash > /etc/bash_completion.d/qgate
  # macOS:
  $ qgate completion bash > /usr/local/etc/bash_completion.d/qgate

Zsh:
  $ qgate completion zsh > "${fpath[1]}/_qgate"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ qgate completion fish > ~/.config/fish/completions/qgate.fish
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell", "status"},
	Args:                  cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		out := cmd.OutOrStdout()
		switch args[0] {
		case "status":
			runCompletionStatus(out)
			return nil
		case "bash":
			writeCompletionHeader(out)
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			writeCompletionHeader(out)
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			writeCompletionHeader(out)
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			writeCompletionHeader(out)
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// writeCompletionHeader writes version metadata as a comment in completion scripts
func writeCompletionHeader(w io.Writer) {
	_, _ = fmt.Fprintf(w, "# qgate completion version: %s\n", getCompletionVersion())
	_, _ = fmt.Fprintf(w, "# qgate version: %s\n\n", Version)
}

// runCompletionStatus checks if installed completions match current version
func runCompletionStatus(w io.Writer) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		_, _ = fmt.Fprintln(w, "❌ Could not detect shell (SHELL env var empty)")
		return
	}

	shellName := filepath.Base(shell)
	currentVersion := getCompletionVersion()

	_, _ = fmt.Fprintf(w, "Current Version: %s (qgate %s)\n", currentVersion, Version)
	_, _ = fmt.Fprintf(w, "Shell: %s\n\n", shellName)

	home, _ := os.UserHomeDir()
	var checkPaths []string
	switch shellName {
	case "bash":
		checkPaths = []string{
			"/etc/bash_completion.d/qgate",
			"/usr/local/etc/bash_completion.d/qgate",
			filepath.Join(home, ".local/share/bash-completion/completions/qgate"),
		}
	case "zsh":
		checkPaths = []string{
			"/usr/local/share/zsh/site-functions/_qgate",
			"/usr/share/zsh/site-functions/_qgate",
		}
	case "fish":
		checkPaths = []string{
			filepath.Join(home, ".config/fish/completions/qgate.fish"),
		}
	default:
		_, _ = fmt.Fprintf(w, "⚠️  Completion status check not supported for %s\n", shellName)
		return
	}

	found, outdated := false, false
	for _, path := range checkPaths {
		content, err := os.ReadFile(path)
		if err != nil || !strings.Contains(string(content), "qgate") {
			continue
		}

		found = true
		_, _ = fmt.Fprintf(w, "📄 Found: %s\n", path)

		switch {
		case strings.Contains(string(content), "completion version: "+currentVersion):
			_, _ = fmt.Fprintln(w, "   ✅ Up to date")
		case strings.Contains(string(content), "completion version:"):
			_, _ = fmt.Fprintf(w, "   ⚠️  Outdated - regenerate with 'qgate completion %s'\n", shellName)
			outdated = true
		default:
			_, _ = fmt.Fprintln(w, "   ⚠️  No version marker - may need regeneration")
			outdated = true
		}
	}

	switch {
	case !found:
		_, _ = fmt.Fprintln(w, "❌ No completion script found")
		_, _ = fmt.Fprintf(w, "\nRun 'qgate completion --help' for setup instructions\n")
	case outdated:
		_, _ = fmt.Fprintln(w, "\n💡 Regenerate the completion script to pick up new commands and flags")
	default:
		_, _ = fmt.Fprintln(w, "\n✅ Completions are up to date")
	}
}
