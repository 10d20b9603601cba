package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pkgwatch/internal/infra/httpfetch"
	"github.com/vietddude/pkgwatch/internal/integrity"
)

var digestTimeout time.Duration

var digestCmd = &cobra.Command{
	Use:   "digest [url]",
	Short: "Download an artifact once and print its SHA-256 digest",
	Args:  cobra.ExactArgs(1),
	Run:   runDigest,
}

func init() {
	digestCmd.Flags().DurationVar(&digestTimeout, "timeout", 60*time.Second, "download timeout")
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) {
	f := httpfetch.New(httpfetch.Config{Timeout: digestTimeout})
	content, err := f.Fetch(context.Background(), args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(integrity.Sum(content))
}
