// Command mongo-mcp exposes a MongoDB deployment over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/ka2n/mcp-servers/cli"
	"github.com/morikuni/failure/v2"
)

func main() {
	if err := cli.RunMongo(); err != nil {
		var userMessage string
		if fmsg := failure.MessageOf(err); fmsg != "" {
			userMessage = fmsg.String()
		} else {
			userMessage = err.Error()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", userMessage)
		os.Exit(1)
	}
}
