// Command client is a small command-line front end for the session service.
//
//	client [-a addr] register <username> <email> <password>
//	client [-a addr] login <username> <password>
//	client [-a addr] introspect|refresh|logout|whoami <token>
//	client [-a addr] federated <id_token>
//	client [-a addr] outbound <code>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var errUsage = errors.New("usage: client [-a addr] register|login|introspect|refresh|logout|whoami|federated|outbound args...")

func main() {
	addr := flag.String("a", "localhost:50051", "server address")
	timeout := flag.Duration("t", 10*time.Second, "request timeout")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, gs.NewClient(conn), flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *gs.Client, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	need := func(n int) error {
		if len(rest) != n {
			return errUsage
		}
		return nil
	}
	printSession := func(s *gs.Session, err error) error {
		if err != nil {
			return err
		}
		fmt.Printf("token: %s\nexpires_at: %s\n", s.Token, s.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	switch cmd {
	case "register":
		if err := need(3); err != nil {
			return err
		}
		id, err := c.Register(ctx, rest[0], rest[1], rest[2])
		if err != nil {
			return err
		}
		fmt.Printf("account_id: %d\n", id)
	case "login":
		if err := need(2); err != nil {
			return err
		}
		return printSession(c.Authenticate(ctx, rest[0], rest[1]))
	case "introspect":
		if err := need(1); err != nil {
			return err
		}
		valid, err := c.Introspect(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("valid: %t\n", valid)
	case "refresh":
		if err := need(1); err != nil {
			return err
		}
		return printSession(c.Refresh(ctx, rest[0]))
	case "logout":
		if err := need(1); err != nil {
			return err
		}
		return c.Logout(ctx, rest[0])
	case "whoami":
		if err := need(1); err != nil {
			return err
		}
		id, err := c.WhoAmI(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("account_id: %d\nusername: %s\nscope: %s\nsource: %s\n",
			id.AccountID, id.Username, strings.Join(id.Scopes, " "), id.Source)
	case "federated":
		if err := need(1); err != nil {
			return err
		}
		return printSession(c.FederatedAuthenticate(ctx, rest[0]))
	case "outbound":
		if err := need(1); err != nil {
			return err
		}
		return printSession(c.OutboundAuthenticate(ctx, rest[0]))
	default:
		return errUsage
	}
	return nil
}
