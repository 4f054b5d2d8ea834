// Command payctl is an operator tool for PayU payments: it queries the
// gateway, computes request hashes, lists stale pending payments and reads
// archived callbacks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payctl",
		Short:         "Inspect and reconcile PayU payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(verifyCmd())
	root.AddCommand(hashCmd())
	root.AddCommand(staleCmd())
	root.AddCommand(callbacksCmd())

	return root
}
