// Command paneltool runs operator tasks against a panel's config and database.
//
//	paneltool admin grant -email alice@example.com
//	paneltool admin revoke -email alice@example.com
//	paneltool audit
//	paneltool keygen
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

const usage = `usage: paneltool <command> [flags]

commands:
  admin grant|revoke -email <email>   change a user's admin role
  audit                               check security settings and 2FA adoption
  keygen                              print a fresh APP_KEY and SESSION_SECRET
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "admin":
		return runAdmin(ctx, args[1:], stdout, stderr)
	case "audit":
		return runAudit(ctx, args[1:], stdout, stderr)
	case "keygen":
		return runKeygen(stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}
