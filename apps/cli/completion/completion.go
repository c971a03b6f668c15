// Package completion installs and removes shell completion scripts generated
// by cobra for the recjpeg command.
package completion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install-autocomplete command
func NewInstallCmd(rootCmd *cobra.Command) *cobra.Command {
	var shellFlag string

	cmd := &cobra.Command{
		Use:   "install-autocomplete",
		Short: "Install shell completion for " + rootCmd.Name(),
		Long: `Install shell completion for the ` + rootCmd.Name() + ` CLI.

Detects your shell from $SHELL unless --shell is given and writes the
completion script to the shell's user completion directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			return runInstall(cmd.OutOrStdout(), rootCmd, shellFlag, home)
		},
	}

	cmd.Flags().StringVarP(&shellFlag, "shell", "s", "", "Shell to install completion for (bash, zsh, fish, powershell). Auto-detected if not specified.")
	return cmd
}

// NewUninstallCmd creates the uninstall-autocomplete command
func NewUninstallCmd(rootCmd *cobra.Command) *cobra.Command {
	var shellFlag string

	cmd := &cobra.Command{
		Use:   "uninstall-autocomplete",
		Short: "Uninstall shell completion for " + rootCmd.Name(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			return runUninstall(cmd.OutOrStdout(), rootCmd.Name(), shellFlag, home)
		},
	}

	cmd.Flags().StringVarP(&shellFlag, "shell", "s", "", "Shell to uninstall completion from (bash, zsh, fish, powershell). Auto-detected if not specified.")
	return cmd
}

func runInstall(out io.Writer, rootCmd *cobra.Command, shellFlag, home string) error {
	shell, err := resolveShell(shellFlag)
	if err != nil {
		return err
	}
	scriptPath, err := ScriptPath(shell, home, rootCmd.Name())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(scriptPath), 0755); err != nil {
		return fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := writeScript(rootCmd, shell, scriptPath); err != nil {
		return err
	}

	if shell == Bash {
		// Non-fatal: the script works once sourced by hand
		if err := addSourceLine(filepath.Join(home, ".bash_completion"), scriptPath); err != nil {
			fmt.Fprintf(out, "Warning: could not enable auto-load: %v\n", err)
		}
	}

	fmt.Fprintf(out, "Shell completion installed for %s at %s\n", shell, scriptPath)
	switch shell {
	case Zsh:
		fmt.Fprintf(out, "Ensure ~/.zshrc contains:\n  fpath=(%s $fpath)\n  autoload -Uz compinit && compinit\n", filepath.Dir(scriptPath))
	case Powershell:
		fmt.Fprintf(out, "Add this to your PowerShell profile:\n  . %s\n", scriptPath)
	default:
		fmt.Fprintln(out, "Open a new shell to use it.")
	}
	return nil
}

func runUninstall(out io.Writer, program, shellFlag, home string) error {
	shell, err := resolveShell(shellFlag)
	if err != nil {
		return err
	}
	scriptPath, err := ScriptPath(shell, home, program)
	if err != nil {
		return err
	}

	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		return fmt.Errorf("completion not installed for %s (expected at %s)", shell, scriptPath)
	}

	if shell == Bash {
		if err := removeSourceLine(filepath.Join(home, ".bash_completion"), scriptPath); err != nil {
			fmt.Fprintf(out, "Warning: could not disable auto-load: %v\n", err)
		}
	}

	if err := os.Remove(scriptPath); err != nil {
		return fmt.Errorf("failed to remove completion file: %w", err)
	}

	fmt.Fprintf(out, "Shell completion removed for %s (%s). Restart your shell to finish.\n", shell, scriptPath)
	return nil
}

func writeScript(rootCmd *cobra.Command, shell Shell, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create completion file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to write completion file: %w", closeErr)
		}
	}()

	switch shell {
	case Bash:
		return rootCmd.GenBashCompletionV2(file, true)
	case Zsh:
		return rootCmd.GenZshCompletion(file)
	case Fish:
		return rootCmd.GenFishCompletion(file, true)
	case Powershell:
		return rootCmd.GenPowerShellCompletionWithDesc(file)
	}
	return fmt.Errorf("unsupported shell: %s", shell)
}

// addSourceLine appends "source <scriptPath>" to rcFile unless a line
// already mentions scriptPath.
func addSourceLine(rcFile, scriptPath string) error {
	content, err := os.ReadFile(rcFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if slices.ContainsFunc(strings.Split(string(content), "\n"), func(line string) bool {
		return strings.Contains(line, scriptPath)
	}) {
		return nil
	}

	f, err := os.OpenFile(rcFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	prefix := ""
	if len(content) > 0 && content[len(content)-1] != '\n' {
		prefix = "\n"
	}
	_, err = fmt.Fprintf(f, "%ssource %s\n", prefix, scriptPath)
	return err
}

// removeSourceLine drops every line of rcFile that mentions scriptPath.
func removeSourceLine(rcFile, scriptPath string) error {
	content, err := os.ReadFile(rcFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	lines := slices.DeleteFunc(strings.Split(string(content), "\n"), func(line string) bool {
		return strings.Contains(line, scriptPath)
	})
	return os.WriteFile(rcFile, []byte(strings.Join(lines, "\n")), 0644)
}
