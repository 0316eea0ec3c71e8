// Command ocsync is a thin CLI wrapping the vio backend: enough to
// connect to a remote, list a directory (ls) and stat a single resource
// (stat), for manual poking at a server without a full sync engine. There
// are no get or put subcommands. The
// subcommand/flag layout follows the teacher's own cmd/ convention of
// one cobra.Command per verb with a shared set of persistent flags.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yagamy4680/ocsync/internal/log"
	"github.com/yagamy4680/ocsync/vio"
)

var (
	flagUser     string
	flagPassword string
	flagDebug    bool
)

func main() {
	root := &cobra.Command{
		Use:   "ocsync",
		Short: "Inspect and exercise an ownCloud-style WebDAV remote",
	}
	root.PersistentFlags().StringVar(&flagUser, "user", "", "remote username")
	root.PersistentFlags().StringVar(&flagPassword, "password", "", "remote password")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(lsCmd(), statCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSession() *vio.Session {
	if flagDebug {
		log.SetLevel(logrus.DebugLevel)
	}
	s := vio.NewSession()
	if flagUser != "" {
		s.SetCredentials(flagUser, flagPassword)
	}
	return s
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <remote-url> <path>",
		Short: "List a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd.Context(), args[0], args[1])
		},
	}
}

func runLs(ctx context.Context, remoteURL, path string) error {
	s := newSession()
	if err := s.Connect(remoteURL); err != nil {
		return err
	}
	dir, err := s.OpenDir(path)
	if err != nil {
		return err
	}
	defer s.CloseDir(dir)

	for {
		res, err := s.ReadDir(path, dir)
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		fmt.Printf("%-10s %10d %s\n", kindLabel(res.Kind), res.Size, res.Name)
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <remote-url> <path>",
		Short: "Stat a single remote resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(cmd.Context(), args[0], args[1])
		},
	}
}

func runStat(ctx context.Context, remoteURL, path string) error {
	s := newSession()
	if err := s.Connect(remoteURL); err != nil {
		return err
	}
	entry, err := s.Stat(path)
	if err != nil {
		return err
	}
	fmt.Printf("name:     %s\n", entry.Name)
	fmt.Printf("kind:     %s\n", kindLabel(entry.Kind))
	fmt.Printf("size:     %d\n", entry.Size)
	fmt.Printf("modified: %s\n", entry.Modified)
	fmt.Printf("etag:     %s\n", entry.ETag)
	return nil
}

func kindLabel(k vio.Kind) string {
	switch k {
	case vio.KindCollection:
		return "directory"
	case vio.KindReference:
		return "reference"
	case vio.KindError:
		return "error"
	default:
		return "file"
	}
}
